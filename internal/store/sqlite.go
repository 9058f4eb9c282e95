package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"pivotscan/internal/errors"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars, one row per instrument session
	CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, date)
	);

	-- Ledger positions, updated in place on every transition
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_price REAL NOT NULL,
		target_price REAL NOT NULL,
		max_hold_date TEXT NOT NULL,
		shares INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		patterns TEXT,
		status TEXT NOT NULL,
		exit_date TEXT,
		exit_price REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// IsBusy reports whether err is a transient SQLite lock conflict.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars
// ============================================================================

// AppendBars appends bars after the last stored session of symbol. The
// batch is rejected whole when any bar is malformed or not strictly later
// than its predecessor. It returns the number of bars written.
func (s *SQLiteStore) AppendBars(ctx context.Context, symbol string, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lastText sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT MAX(date) FROM bars WHERE symbol = ?`, symbol).Scan(&lastText); err != nil {
		return 0, fmt.Errorf("failed to read last bar: %w", err)
	}
	var last time.Time
	if lastText.Valid {
		if last, err = models.ParseDate(lastText.String); err != nil {
			return 0, fmt.Errorf("failed to parse stored date: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if !b.Valid() {
			return 0, errors.NewDataError("bar", symbol, fmt.Sprintf("malformed bar on %s", b.Date.Format(models.DateLayout)), errors.ErrInvalidBar)
		}
		date := models.SessionDate(b.Date)
		if !last.IsZero() && !date.After(last) {
			return 0, errors.NewDataError("bar", symbol,
				fmt.Sprintf("%s is not after %s", date.Format(models.DateLayout), last.Format(models.DateLayout)),
				errors.ErrOutOfOrderBar)
		}
		if _, err := stmt.ExecContext(ctx, symbol, date.Format(models.DateLayout), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("failed to insert bar: %w", err)
		}
		last = date
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(bars), nil
}

// GetBars retrieves the bars of symbol within filter in date order.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, filter DateRange) ([]models.Bar, error) {
	query := "SELECT date, open, high, low, close, volume FROM bars WHERE symbol = ?"
	args := []interface{}{symbol}
	if !filter.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.Start.Format(models.DateLayout))
	}
	if !filter.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, filter.End.Format(models.DateLayout))
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse bar date: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	return bars, nil
}

// LastBarDate returns the most recent stored session of symbol.
func (s *SQLiteStore) LastBarDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM bars WHERE symbol = ?`, symbol).Scan(&date)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, false, fmt.Errorf("failed to get last bar date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	t, err := models.ParseDate(date.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse bar date: %w", err)
	}
	return t, true, nil
}

// Symbols returns every instrument with stored bars, sorted.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// LoadSeries appends the stored bars of symbols up to end into dst. Empty
// symbols loads every instrument; a zero end loads everything.
func LoadSeries(ctx context.Context, src BarStore, dst *series.Store, symbols []string, end time.Time) error {
	if len(symbols) == 0 {
		var err error
		if symbols, err = src.Symbols(ctx); err != nil {
			return err
		}
	}
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars, err := src.GetBars(ctx, sym, DateRange{End: end})
		if err != nil {
			return errors.Wrapf(err, "loading %s", sym)
		}
		if err := dst.AppendAll(sym, bars); err != nil {
			return errors.Wrapf(err, "loading %s", sym)
		}
	}
	return nil
}

// ============================================================================
// Positions
// ============================================================================

// SavePosition inserts p or updates the stored row with the same ID.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *models.Position) error {
	patterns, _ := json.Marshal(p.Patterns)

	var exitDate sql.NullString
	var exitPrice sql.NullFloat64
	if p.ExitDate != nil {
		exitDate = sql.NullString{String: p.ExitDate.Format(models.DateLayout), Valid: true}
	}
	if p.ExitPrice != nil {
		exitPrice = sql.NullFloat64{Float64: *p.ExitPrice, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, symbol, entry_date, entry_price, stop_price, target_price, max_hold_date, shares, score, patterns, status, exit_date, exit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			exit_date = excluded.exit_date,
			exit_price = excluded.exit_price,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.Instrument, p.EntryDate.Format(models.DateLayout), p.EntryPrice, p.StopPrice, p.TargetPrice,
		p.MaxHoldDate.Format(models.DateLayout), p.Shares, p.Score, string(patterns), string(p.Status), exitDate, exitPrice)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// ListPositions returns every stored position in insertion order.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, entry_date, entry_price, stop_price, target_price, max_hold_date, shares, score, patterns, status, exit_date, exit_price
		FROM positions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var entryDate, maxHold, status string
		var patternsJSON sql.NullString
		var exitDate sql.NullString
		var exitPrice sql.NullFloat64

		if err := rows.Scan(&p.ID, &p.Instrument, &entryDate, &p.EntryPrice, &p.StopPrice, &p.TargetPrice,
			&maxHold, &p.Shares, &p.Score, &patternsJSON, &status, &exitDate, &exitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if p.EntryDate, err = models.ParseDate(entryDate); err != nil {
			return nil, fmt.Errorf("failed to parse entry date: %w", err)
		}
		if p.MaxHoldDate, err = models.ParseDate(maxHold); err != nil {
			return nil, fmt.Errorf("failed to parse max hold date: %w", err)
		}
		p.Status = models.PositionStatus(status)
		if patternsJSON.Valid {
			_ = json.Unmarshal([]byte(patternsJSON.String), &p.Patterns)
		}
		if exitDate.Valid {
			t, err := models.ParseDate(exitDate.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse exit date: %w", err)
			}
			p.ExitDate = &t
		}
		if exitPrice.Valid {
			price := exitPrice.Float64
			p.ExitPrice = &price
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}
