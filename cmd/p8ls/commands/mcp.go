package commands

import (
	"github.com/spf13/cobra"
	"github.com/teranos/p8ls/am"
	"github.com/teranos/p8ls/kb"
	"github.com/teranos/p8ls/lsp"
	"github.com/teranos/p8ls/mcp"
)

// MCPCmd serves the lookups as MCP tools
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve PICO-8 completion and documentation tools over MCP (stdio)",
	Long: `Serve the language service lookups as Model Context Protocol tools on stdio.

Tools:
  pico8_completions  - completion entries for a file
  pico8_hover        - documentation for a word in a file
  pico8_identifiers  - every documented identifier`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return err
	}

	base := kb.Default()
	service := lsp.NewService(base, lsp.NewFileGate(cfg.LSP.Extensions...))
	return mcp.NewMCPServer(service, service, base).Serve()
}
