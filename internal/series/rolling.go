package series

import "math"

// rolling maintains a k-period simple moving average with a running sum.
// values[j] is the average of the k inputs ending at j, or NaN while fewer
// than k inputs exist.
type rolling struct {
	period int
	sum    float64
	inputs []float64
	values []float64
}

func newRolling(period int) *rolling {
	return &rolling{period: period}
}

// push adds the next input and records the average ending at it.
func (r *rolling) push(v float64) {
	r.inputs = append(r.inputs, v)
	r.sum += v
	n := len(r.inputs)
	if n > r.period {
		r.sum -= r.inputs[n-1-r.period]
	}
	if n >= r.period {
		r.values = append(r.values, r.sum/float64(r.period))
	} else {
		r.values = append(r.values, math.NaN())
	}
}

// at returns the average ending at index j.
func (r *rolling) at(j int) (float64, bool) {
	if j < 0 || j >= len(r.values) || j+1 < r.period {
		return 0, false
	}
	return r.values[j], true
}
