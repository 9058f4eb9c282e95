package feed

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pivotscan/internal/errors"
)

// Universe is the instrument list of a scan plus its regime index.
type Universe struct {
	Index   string   `yaml:"index" json:"index"`
	Symbols []string `yaml:"symbols" json:"symbols"`
}

// LoadUniverse reads a YAML universe file:
//
//	index: SPY
//	symbols: [AAPL, MSFT, NVDA]
//
// Symbols are upper-cased and de-duplicated in file order; the index is
// never part of Symbols.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading universe %s", path)
	}
	return ParseUniverse(data)
}

// ParseUniverse decodes YAML universe content.
func ParseUniverse(data []byte) (*Universe, error) {
	var raw Universe
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing universe")
	}

	u := &Universe{Index: strings.ToUpper(strings.TrimSpace(raw.Index))}
	seen := map[string]bool{u.Index: true}
	for _, sym := range raw.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		u.Symbols = append(u.Symbols, sym)
	}
	if len(u.Symbols) == 0 {
		return nil, errors.NewValidationError("symbols", len(raw.Symbols), "universe lists no instruments")
	}
	return u, nil
}
