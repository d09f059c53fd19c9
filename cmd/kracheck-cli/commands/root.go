package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"kracheck-backend/internal/components/telemetry"
	"kracheck-backend/internal/scrapers/itax"
	"kracheck-backend/internal/service"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
)

var (
	serverUrl   string
	accessToken string
	timeout     time.Duration
	concurrency int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "kracheck-cli",
	Short: "kracheck-cli looks up invoices on the KRA iTax invoice checker.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverUrl, "server", "", "Base url of a kracheckd instance, the portal is scraped locally when empty.")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "Access token of the kracheckd instance.")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", itax.DefaultTimeout, "Timeout of a single portal request when scraping locally.")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", itax.DefaultMaxConcurrency, "Maximum amount of portal requests in flight when scraping locally.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// backend is either the local scraper or a remote kracheckd.
type backend interface {
	Lookup(ctx context.Context, invoiceNumber string) (itax.ExtractedFields, error)
	// onDone is called once per finished invoice, remote backends call it
	// for every invoice once the whole batch is back.
	LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func()) ([]service.InvoiceResult, error)
	local() bool
}

func newBackend() (backend, error) {
	if serverUrl != "" {
		var opts []connect.ClientOption
		if accessToken != "" {
			opts = append(opts, connect.WithInterceptors(service.NewAccessTokenInterceptor(accessToken)))
		}
		return remoteBackend{client: service.NewClient(http.DefaultClient, serverUrl, opts...)}, nil
	}

	tel := telemetry.SlogAPI{}
	client, err := itax.NewClient(itax.ClientOptions{
		Timeout:        timeout,
		MaxConcurrency: concurrency,
	}, tel)
	if err != nil {
		return nil, err
	}
	return localBackend{scraper: itax.NewScraper(client, tel)}, nil
}

type localBackend struct {
	scraper *itax.Scraper
}

func (b localBackend) Lookup(ctx context.Context, invoiceNumber string) (itax.ExtractedFields, error) {
	result := b.scraper.Lookup(ctx, invoiceNumber)
	return result.Fields, result.Err
}

func (b localBackend) LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func()) ([]service.InvoiceResult, error) {
	results := b.scraper.LookupBatch(ctx, invoiceNumbers, func(int, itax.Result) {
		onDone()
	})
	out := make([]service.InvoiceResult, len(results))
	for i, r := range results {
		out[i] = service.NewInvoiceResult(r)
	}
	return out, nil
}

func (localBackend) local() bool {
	return true
}

type remoteBackend struct {
	client service.Client
}

func (b remoteBackend) Lookup(ctx context.Context, invoiceNumber string) (itax.ExtractedFields, error) {
	return b.client.GetInvoice(ctx, invoiceNumber)
}

func (b remoteBackend) LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func()) ([]service.InvoiceResult, error) {
	results, err := b.client.GetInvoices(ctx, invoiceNumbers)
	if err != nil {
		return nil, err
	}
	for range results {
		onDone()
	}
	return results, nil
}

func (remoteBackend) local() bool {
	return false
}
