// Package errors holds the sentinel errors of the scanner and the typed
// errors that wrap them. Callers match with Is and As.
package errors

import (
	"errors"
	"fmt"
)

// Series and scan errors.
var (
	ErrOutOfOrderBar       = errors.New("bar out of order")
	ErrInvalidBar          = errors.New("invalid bar")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrUnknownInstrument   = errors.New("unknown instrument")
	ErrDataNotFound        = errors.New("data not found")
)

// Ledger errors.
var (
	ErrDuplicateOpenPosition = errors.New("open position already exists")
	ErrPositionNotFound      = errors.New("position not found")
	ErrMaxOpenPositions      = errors.New("maximum open positions reached")
)

// Input errors.
var (
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrConfigInvalid     = errors.New("invalid configuration")
)

// DataError is a failure reading or appending the bars of one instrument.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.DataType, e.Symbol, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Message: message, Err: err}
}

// ValidationError is a rejected parameter. It matches ErrInvalidParameters.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidParameters }

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// PositionError is a ledger operation refused for one instrument.
type PositionError struct {
	Symbol string
	Action string
	Reason string
	Err    error
}

func (e *PositionError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Action, e.Symbol, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PositionError) Unwrap() error { return e.Err }

func NewPositionError(symbol, action, reason string, err error) *PositionError {
	return &PositionError{Symbol: symbol, Action: action, Reason: reason, Err: err}
}

// RiskError is a portfolio limit that blocks a new position. It matches
// ErrMaxOpenPositions.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("%s: %s (%g of %g)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error { return ErrMaxOpenPositions }

func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }
