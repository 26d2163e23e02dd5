package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teranos/p8ls/am"
	"github.com/teranos/p8ls/errors"
	"github.com/teranos/p8ls/logger"
)

// RootCmd is the p8ls entry point
var RootCmd = &cobra.Command{
	Use:   "p8ls",
	Short: "p8ls - PICO-8 completion and hover language server",
	Long: `p8ls - PICO-8 completion and hover language server.

Offers PICO-8 API completions and hover documentation to any LSP client
for .p8 and .lua files. The same lookups are available to AI agents over MCP.

Available commands:
  serve   - Serve LSP over stdio (default), TCP or WebSocket
  mcp     - Serve the lookups as MCP tools over stdio
  docs    - Print the PICO-8 API reference
  am      - Manage p8ls configuration ("I am")
  version - Show version information

Examples:
  p8ls serve                  # Editor launches p8ls on stdio
  p8ls serve --tcp :7997      # Serve LSP over TCP
  p8ls docs btn               # Documentation for btn
  p8ls am show --format yaml  # Show configuration`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// flagKeys maps CLI flags to the configuration keys they override
var flagKeys = map[string]string{
	"verbose":   "log.verbosity",
	"log-json":  "log.json",
	"transport": "server.transport",
	"tcp":       "server.tcp_address",
	"ws":        "server.ws_address",
}

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (repeat for more detail: -v, -vv, -vvv)")
	RootCmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON")

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(MCPCmd)
	RootCmd.AddCommand(DocsCmd)
	RootCmd.AddCommand(AmCmd)
	RootCmd.AddCommand(VersionCmd)
}

// Execute runs the root command
func Execute() error {
	defer logger.Cleanup()
	return RootCmd.Execute()
}

// setup binds flags into the configuration and initializes the logger.
// Flags win over every config source.
func setup(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, am.GetViper()); err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("log-json")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	// The am commands must still run when the config is broken, to report it
	cfg, err := am.Load()
	if err == nil {
		jsonOutput = cfg.Log.JSON
		verbosity = cfg.Log.Verbosity
	} else if cmd.Parent() != AmCmd {
		return err
	}

	if err := logger.Initialize(jsonOutput, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "failed to bind --%s", name)
		}
	}
	return nil
}
