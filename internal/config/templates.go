package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# pivotscan configuration

[scan]
# Minimum score for a tradable signal (0-100)
signal_threshold = 30
# Minimum score for a watchlist entry; must not exceed signal_threshold
watch_threshold = 10
# Parallel detection workers
workers = 4
# Sessions of history handed to the detectors
window_length = 252
# Broad market index used by the regime gate
index_symbol = "SPY"

[regime]
# Index must close above this simple moving average
sma_period = 200
# Treat the market as tradable when history is too short to judge
fail_open = false

[ledger]
stop_pct = 0.10
target_pct = 0.20
# Calendar days before a time exit
max_hold_days = 60
# 0 disables the limit
max_open_positions = 5
# Allow at most one open position per symbol
single_position = true
account_size = 100000.0
# Fraction of the account risked per trade
risk_pct = 0.02

[data]
# SQLite database; defaults to pivotscan.db in the config directory
db_path = ""
# YAML universe file (index, symbols)
universe = ""
# Directory of <SYMBOL>.csv files for "import --dir"
csv_dir = ""

[log]
# debug, info, warn, error
level = "info"
# Also write a rotating log file
file = false
file_path = ""
max_size = 50
max_backups = 5
max_age = 30

[metrics]
enabled = false
# Prometheus textfile collector output
textfile = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
