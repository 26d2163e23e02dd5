package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/p8ls/kb"
)

// DocsCmd prints the PICO-8 API reference
var DocsCmd = &cobra.Command{
	Use:   "docs [identifier]",
	Short: "Print the PICO-8 API reference",
	Long: `Print the PICO-8 API reference served by p8ls.

Without arguments, lists every completion entry and the documented identifiers.
With an identifier, prints its documentation.

Examples:
  p8ls docs          # completion table and documented identifiers
  p8ls docs spr      # documentation for spr`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDocs,
}

func runDocs(cmd *cobra.Command, args []string) error {
	base := kb.Default()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		doc, ok := base.Documentation(args[0])
		if !ok {
			return fmt.Errorf("no documentation for %q", args[0])
		}
		pterm.Fprintln(out, pterm.LightCyan(args[0]))
		pterm.Fprintln(out, doc)
		return nil
	}

	data := pterm.TableData{{"Identifier", "Template", "Description"}}
	for _, entry := range base.Completions() {
		data = append(data, []string{
			entry.Identifier,
			strings.ReplaceAll(entry.InsertTemplate, "\n", `\n`),
			entry.ShortDescription,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return err
	}

	pterm.Fprintln(out)
	pterm.Fprintln(out, pterm.Gray("Documented: ")+strings.Join(base.Identifiers(), ", "))
	return nil
}
