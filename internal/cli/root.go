package cli

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pivotscan/internal/config"
	"pivotscan/internal/errors"
	"pivotscan/internal/logging"
	"pivotscan/internal/metrics"
	"pivotscan/internal/store"
	"pivotscan/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-14"
)

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Recorder

	store  *store.SQLiteStore
	closed bool
}

// newRootCmd creates the root command and the App its commands share.
func newRootCmd() (*cobra.Command, *App) {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "pivotscan",
		Short: "Base-pattern scanner, signal scorer and position ledger",
		Long: `pivotscan scans daily price and volume series for seven base patterns
(cup with handle, breakout, VCP, flat base, pocket pivot, ascending base,
double bottom), scores and ranks the signals, gates them on the market
regime and tracks the positions opened from them.

Bars are imported from CSV files into a local SQLite database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/pivotscan)")
	rootCmd.PersistentFlags().String("db", "", "database path (default: <config>/pivotscan.db)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addScanCommands(rootCmd, app)
	addPositionCommands(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd, app
}

// Execute runs the root command with ctx. The database is closed even when
// the command fails.
func Execute(ctx context.Context) error {
	cmd, app := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if cerr := app.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *App) setup(cmd *cobra.Command) error {
	a.ConfigDir, _ = cmd.Flags().GetString("config")
	if a.ConfigDir == "" {
		a.ConfigDir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(a.ConfigDir)
	if err != nil {
		return err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Data.DBPath = db
	}
	a.Config = cfg

	level := cfg.Log.Level
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	lc := logging.DefaultLogConfig()
	lc.Level = level
	lc.File = cfg.Log.File
	lc.FilePath = cfg.Log.FilePath
	lc.MaxSize = cfg.Log.MaxSize
	lc.MaxBackups = cfg.Log.MaxBackups
	lc.MaxAge = cfg.Log.MaxAge
	lc.Output = cmd.ErrOrStderr()
	a.Logger = logging.NewLoggerWithConfig(lc)
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.Logger))

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewRecorder()
	}
	a.Logger.Debug().Str("config_dir", a.ConfigDir).Str("db", cfg.Data.DBPath).Msg("Configuration loaded")
	return nil
}

// Store opens the database on first use. Lock conflicts with another
// process are retried.
func (a *App) Store(ctx context.Context) (*store.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	retry := utils.DefaultRetryConfig()
	retry.Retryable = store.IsBusy
	s, err := utils.RetryWithResult(ctx, retry, func() (*store.SQLiteStore, error) {
		return store.NewSQLiteStore(a.Config.Data.DBPath)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", a.Config.Data.DBPath)
	}
	a.Logger.Debug().Str("path", a.Config.Data.DBPath).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

func (a *App) close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.Metrics != nil && a.Config != nil && a.Config.Metrics.TextFile != "" {
		if err := a.Metrics.WriteTextfile(a.Config.Metrics.TextFile); err != nil {
			a.Logger.Warn().Err(err).Str("path", a.Config.Metrics.TextFile).Msg("Failed to write metrics")
		}
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// resolvePath interprets relative data paths against the config directory.
func (a *App) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.ConfigDir, path)
}

// addCoreCommands adds version and config commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return output.Render(map[string]string{
				"version":    Version,
				"build_date": BuildDate,
			}, func() error {
				output.Printf("pivotscan v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
				return nil
			})
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return output.Render(app.Config, func() error {
				return showConfig(output, app.Config)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigFile(app.ConfigDir)
			return output.Render(map[string]string{"path": path}, func() error {
				output.Println(path)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			return output.Render(map[string]bool{"valid": true}, func() error {
				output.Success("Configuration is valid")
				return nil
			})
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Scan")
	output.Printf("  Signal threshold: %d\n", cfg.Scan.SignalThreshold)
	output.Printf("  Watch threshold:  %d\n", cfg.Scan.WatchThreshold)
	output.Printf("  Workers:          %d\n", cfg.Scan.Workers)
	output.Printf("  Window length:    %d\n", cfg.Scan.WindowLength)
	output.Printf("  Index:            %s\n", cfg.Scan.IndexSymbol)
	output.Println()

	output.Bold("Regime")
	output.Printf("  SMA period:       %d\n", cfg.Regime.SMAPeriod)
	output.Printf("  Fail open:        %v\n", cfg.Regime.FailOpen)
	output.Println()

	output.Bold("Ledger")
	output.Printf("  Stop:             %.1f%%\n", cfg.Ledger.StopPct*100)
	output.Printf("  Target:           %.1f%%\n", cfg.Ledger.TargetPct*100)
	output.Printf("  Max hold:         %d days\n", cfg.Ledger.MaxHoldDays)
	output.Printf("  Max positions:    %d\n", cfg.Ledger.MaxOpenPositions)
	output.Printf("  Single position:  %v\n", cfg.Ledger.SinglePosition)
	output.Printf("  Account size:     %s\n", utils.FormatCurrency(cfg.Ledger.AccountSize))
	output.Printf("  Risk per trade:   %.1f%%\n", cfg.Ledger.RiskPct*100)
	output.Println()

	output.Bold("Data")
	output.Printf("  Database:         %s\n", cfg.Data.DBPath)
	output.Printf("  Universe:         %s\n", cfg.Data.Universe)
	output.Printf("  CSV directory:    %s\n", cfg.Data.CSVDir)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:            %s\n", cfg.Log.Level)
	output.Printf("  File:             %v\n", cfg.Log.File)
	output.Printf("  Metrics:          %v\n", cfg.Metrics.Enabled)
	return nil
}
