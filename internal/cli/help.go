package cli

import (
	"github.com/spf13/cobra"
)

type commandDoc struct {
	cmd  string
	desc string
}

type commandCategory struct {
	name     string
	commands []commandDoc
}

var commandCategories = []commandCategory{
	{
		name: "Data",
		commands: []commandDoc{
			{"import <symbol> <file>", "Import one CSV file"},
			{"import --dir <dir>", "Import every SYMBOL.csv of a directory"},
			{"bars <symbol>", "Show stored bars"},
		},
	},
	{
		name: "Scanning",
		commands: []commandDoc{
			{"scan", "Scan the universe on the latest session"},
			{"scan --date <date>", "Scan a past session"},
			{"regime", "Show the market regime gate"},
			{"backtest --from <date>", "Replay the scanner over stored history"},
		},
	},
	{
		name: "Positions",
		commands: []commandDoc{
			{"position open <symbol>", "Open a position"},
			{"position close <symbol>", "Close open positions manually"},
			{"position list", "List open positions"},
			{"position evaluate", "Apply stop, target and time exits"},
			{"size <entry>", "Size a position from account risk"},
			{"perf", "Closed-trade performance"},
		},
	},
	{
		name: "Configuration",
		commands: []commandDoc{
			{"config show", "Show current configuration"},
			{"config path", "Show configuration file path"},
			{"config validate", "Validate configuration"},
			{"version", "Print version information"},
		},
	},
}

func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newQuickstartCmd())
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			output.Bold("pivotscan commands")
			output.Println()
			for _, cat := range commandCategories {
				output.Info(cat.name)
				for _, c := range cat.commands {
					output.Printf("  %-26s %s\n", c.cmd, c.desc)
				}
				output.Println()
			}
			output.Dim("Add --json or --yaml to any command for structured output.")
			return nil
		},
	}
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "Show a getting-started guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			output.Bold("Getting started")
			output.Println()
			steps := []commandDoc{
				{"1. Import bars", "pivotscan import --dir ./data"},
				{"2. Check the regime", "pivotscan regime"},
				{"3. Scan", "pivotscan scan --universe universe.yaml"},
				{"4. Size an entry", "pivotscan size 190.5"},
				{"5. Open it", "pivotscan position open AAPL 190.5"},
				{"6. Next sessions", "pivotscan import --dir ./data --new-only && pivotscan position evaluate"},
				{"7. Review", "pivotscan perf"},
			}
			for _, s := range steps {
				output.Printf("  %-22s ", s.cmd)
				output.Info("%s", s.desc)
			}
			output.Println()
			output.Dim("Configuration lives in %s", "~/.config/pivotscan/config.toml")
			return nil
		},
	}
}
