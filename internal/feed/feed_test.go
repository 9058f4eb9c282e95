package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotscan/internal/errors"
)

const sample = `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-02,100.5,102,99.25,101,101,1500000
2024-01-03 00:00:00,101,103.5,100,103,103,1750000
`

func TestRead(t *testing.T) {
	bars, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 100.5, bars[0].Open)
	assert.Equal(t, 102.0, bars[0].High)
	assert.Equal(t, 99.25, bars[0].Low)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, int64(1500000), bars[0].Volume)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Date)
}

func TestReadBadDate(t *testing.T) {
	_, err := Read(strings.NewReader("date,open,high,low,close,volume\n01/02/2024,1,1,1,1,1\n"))
	assert.Error(t, err)
}

func TestCSVFeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(sample), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "msft.csv"), []byte(sample), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	f := NewCSVFeed(dir)
	syms, err := f.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)

	bars, err := f.Bars(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	_, err = f.Bars(context.Background(), "NVDA")
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestParseUniverse(t *testing.T) {
	u, err := ParseUniverse([]byte("index: spy\nsymbols:\n  - aapl\n  - MSFT\n  - AAPL\n  - SPY\n  - ' nvda '\n"))
	require.NoError(t, err)
	assert.Equal(t, "SPY", u.Index)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, u.Symbols)
}

func TestParseUniverseEmpty(t *testing.T) {
	_, err := ParseUniverse([]byte("index: SPY\nsymbols: []\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = ParseUniverse([]byte("symbols: [unclosed"))
	assert.Error(t, err)
}

func TestLoadUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: QQQ\nsymbols: [AAPL]\n"), 0644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, "QQQ", u.Index)
	assert.Equal(t, []string{"AAPL"}, u.Symbols)
}
