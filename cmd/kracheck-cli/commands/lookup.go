package commands

import (
	"fmt"
	"io"
	"os"

	"kracheck-backend/internal/scrapers/itax"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <invoice number>",
	Short: "Prints the details of a single invoice.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := newBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		fields, err := b.Lookup(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, describeFailure(err))
			os.Exit(1)
		}
		renderFields(os.Stdout, fields)
	},
}

func describeFailure(err error) string {
	kind, ok := itax.KindOf(err)
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", kind, err.Error())
}

func renderFields(out io.Writer, fields itax.ExtractedFields) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range itax.AllFields {
		t.AppendRow(table.Row{f.Label(), fields.Get(f)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
