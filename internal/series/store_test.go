package series

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotscan/internal/errors"
	"pivotscan/internal/models"
	"pivotscan/internal/testutil"
)

func TestAppendOrdering(t *testing.T) {
	s := NewStore()
	bars := testutil.FromCloses([]float64{10, 11, 12}, 1000)
	require.NoError(t, s.AppendAll("AAA", bars))

	err := s.Append("AAA", bars[2])
	assert.True(t, errors.Is(err, errors.ErrOutOfOrderBar))

	err = s.Append("AAA", bars[0])
	assert.True(t, errors.Is(err, errors.ErrOutOfOrderBar))

	var dataErr *errors.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "AAA", dataErr.Symbol)
	assert.Equal(t, 3, s.Len("AAA"))
}

func TestAppendInvalidBar(t *testing.T) {
	s := NewStore()
	bad := models.Bar{Date: testutil.Day(0), Open: 10, High: 9, Low: 11, Close: 10, Volume: 1}
	err := s.Append("AAA", bad)
	assert.True(t, errors.Is(err, errors.ErrInvalidBar))

	neg := models.Bar{Date: testutil.Day(0), Open: 10, High: 11, Low: 9, Close: 10, Volume: -1}
	assert.True(t, errors.Is(s.Append("AAA", neg), errors.ErrInvalidBar))
	assert.Equal(t, 0, s.Len("AAA"))
}

func TestAppendNormalizesDate(t *testing.T) {
	s := NewStore()
	b := testutil.FromCloses([]float64{10}, 1)[0]
	b.Date = b.Date.Add(15 * time.Hour)
	require.NoError(t, s.Append("AAA", b))
	last, ok := s.Last("AAA")
	require.True(t, ok)
	assert.Equal(t, testutil.Day(0), last.Date)
}

func TestWindow(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AppendAll("AAA", testutil.FromCloses(testutil.Ramp(10, 1, 10), 100)))

	w, err := s.Window("AAA", testutil.Day(9), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, 10.0, w.Last().Close)
	assert.Equal(t, 6.0, w.Bar(0).Close)

	w, err = s.Window("AAA", testutil.Day(4), 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, w.Last().Close)

	_, err = s.Window("AAA", testutil.Day(3), 5)
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))

	_, err = s.Window("ZZZ", testutil.Day(9), 5)
	assert.True(t, errors.Is(err, errors.ErrUnknownInstrument))

	// An end date between sessions resolves to the prior session.
	w, err = s.Window("AAA", testutil.Day(30), 3)
	require.NoError(t, err)
	assert.Equal(t, testutil.Day(9), w.EndDate())
}

func TestWindowUpTo(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AppendAll("AAA", testutil.FromCloses(testutil.Ramp(10, 1, 10), 100)))

	w, err := s.WindowUpTo("AAA", testutil.Day(9), 252)
	require.NoError(t, err)
	assert.Equal(t, 10, w.Len())

	w, err = s.WindowUpTo("AAA", testutil.Day(9), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Len())

	_, err = s.WindowUpTo("AAA", testutil.Day(-1), 4)
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))
}

func TestWindowIsStableAcrossAppends(t *testing.T) {
	s := NewStore()
	bars := testutil.FromCloses(testutil.Ramp(20, 1, 20), 100)
	require.NoError(t, s.AppendAll("AAA", bars[:10]))

	w, err := s.Window("AAA", testutil.Day(9), 10)
	require.NoError(t, err)
	require.NoError(t, s.AppendAll("AAA", bars[10:]))

	assert.Equal(t, 10, w.Len())
	assert.Equal(t, 10.0, w.Last().Close)
	assert.Equal(t, 3, w.Tail(3).Len())
	assert.Equal(t, 8.0, w.Tail(3).Bar(0).Close)
}

func TestRangeAndBarAt(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AppendAll("AAA", testutil.FromCloses(testutil.Ramp(10, 1, 10), 100)))

	got := s.Range("AAA", testutil.Day(2), testutil.Day(5))
	require.Len(t, got, 3)
	assert.Equal(t, 4.0, got[0].Close)
	assert.Equal(t, 6.0, got[2].Close)

	b, ok := s.BarAt("AAA", testutil.Day(7))
	require.True(t, ok)
	assert.Equal(t, 8.0, b.Close)

	_, ok = s.BarAt("AAA", testutil.Day(70))
	assert.False(t, ok)
	assert.Equal(t, []string{"AAA"}, s.Instruments())
}

func TestRollingStats(t *testing.T) {
	s := NewStore()
	closes := testutil.Ramp(10, 1, 10)
	require.NoError(t, s.AppendAll("AAA", testutil.FromCloses(closes, 100)))

	_, err := s.SMA("AAA", 5, testutil.Day(3))
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))

	v, err := s.SMA("AAA", 5, testutil.Day(9))
	require.NoError(t, err)
	assert.InDelta(t, 8.0, v, 1e-9)

	// Registered periods are maintained on append.
	require.NoError(t, s.Append("AAA", testutil.FromCloses(testutil.Concat(closes, []float64{21}), 400)[10]))
	v, err = s.SMA("AAA", 5, testutil.Day(10))
	require.NoError(t, err)
	assert.InDelta(t, (7+8+9+10+21)/5.0, v, 1e-9)

	av, err := s.AverageVolume("AAA", 2, testutil.Day(10))
	require.NoError(t, err)
	assert.InDelta(t, 250.0, av, 1e-9)
}

// Property: the incrementally maintained SMA equals a from-scratch mean
// regardless of when the period was first requested.
func TestProperty_RollingMatchesNaiveMean(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("rolling SMA equals naive mean", prop.ForAll(
		func(closes []float64, period int, split int) bool {
			if len(closes) == 0 {
				return true
			}
			if split > len(closes) {
				split = len(closes)
			}
			bars := testutil.FromCloses(closes, 1000)
			s := NewStore()
			if err := s.AppendAll("X", bars[:split]); err != nil {
				return false
			}
			if split > 0 {
				_, _ = s.SMA("X", period, bars[split-1].Date)
			}
			if err := s.AppendAll("X", bars[split:]); err != nil {
				return false
			}

			for j := range closes {
				got, err := s.SMA("X", period, bars[j].Date)
				if j+1 < period {
					if !errors.Is(err, errors.ErrInsufficientHistory) {
						return false
					}
					continue
				}
				if err != nil {
					return false
				}
				sum := 0.0
				for _, c := range closes[j+1-period : j+1] {
					sum += c
				}
				want := sum / float64(period)
				if math.Abs(got-want) > 1e-6*want {
					t.Logf("index %d: got %f want %f", j, got, want)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(80, gen.Float64Range(1, 500)),
		gen.IntRange(1, 30),
		gen.IntRange(0, 80),
	))

	properties.TestingRun(t)
}

func TestConcurrentReaders(t *testing.T) {
	s := NewStore()
	bars := testutil.FromCloses(testutil.Ramp(300, 10, 40), 1000)
	require.NoError(t, s.AppendAll("AAA", bars[:100]))

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(period int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = s.SMA("AAA", period, testutil.Day(99))
				_, _ = s.WindowUpTo("AAA", testutil.Day(299), 50)
			}
		}(10 + r)
	}
	for _, b := range bars[100:] {
		require.NoError(t, s.Append("AAA", b))
	}
	wg.Wait()
	assert.Equal(t, 300, s.Len("AAA"))
}
