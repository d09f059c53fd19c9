package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"kracheck-backend/internal/scrapers/itax"
	"kracheck-backend/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var batchFile string

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Read invoice numbers from a file, one per line.")
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch <invoice number>...",
	Short: "Looks up several invoices at once.",
	Run: func(cmd *cobra.Command, args []string) {
		invoiceNumbers := args
		if batchFile != "" {
			f, err := os.Open(batchFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			fromFile, err := readInvoiceNumbers(f)
			f.Close()
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			invoiceNumbers = append(invoiceNumbers, fromFile...)
		}
		if len(invoiceNumbers) == 0 {
			fmt.Fprintln(os.Stderr, "no invoice numbers given")
			os.Exit(1)
		}

		b, err := newBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		var bar *progressbar.ProgressBar
		if b.local() && isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(invoiceNumbers),
				progressbar.OptionSetDescription("Looking up invoices"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		results, err := b.LookupBatch(cmd.Context(), invoiceNumbers, func() {
			if bar != nil {
				bar.Add(1)
			}
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		renderBatch(os.Stdout, results)
	},
}

// readInvoiceNumbers reads one invoice number per line, blank lines and
// lines starting with # are skipped.
func readInvoiceNumbers(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func renderBatch(out io.Writer, results []service.InvoiceResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Invoice Number", "Status", "Supplier", "Total", "Error"})
	for _, r := range results {
		var supplier, total, message string
		if r.Data != nil {
			supplier = r.Data.Get(itax.SupplierName)
			total = r.Data.Get(itax.TotalInvoiceAmount)
		}
		if r.Error != nil {
			message = *r.Error
		}
		t.AppendRow(table.Row{r.InvoiceNumber, r.Status, supplier, total, message})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
