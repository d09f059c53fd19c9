// client.go contains the fetcher, it only knows how to get a page for an
// invoice number off the portal, it does not look at what's inside.

package itax

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"kracheck-backend/internal/components/assert"
	"kracheck-backend/internal/components/chrono"
	"kracheck-backend/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseUrl        = "https://itax.kra.go.ke/KRA-Portal/invoiceChk.htm"
	DefaultTimeout        = time.Second * 20
	DefaultMaxConcurrency = 5

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

const (
	report_client_fetch     = "client.fetch"
	report_client_in_flight = "client.in-flight"
)

type ClientOptions struct {
	// BaseUrl is the invoice check page, defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout bounds a single fetch, it starts counting once the fetch has
	// been admitted by the concurrency limiter.
	Timeout time.Duration
	// MaxConcurrency is the maximum amount of fetches in flight at once.
	MaxConcurrency int
	// RequestsPerSecond paces requests to the portal, 0 disables pacing.
	RequestsPerSecond float64
	// CloudflareBypass wraps the transport so it looks like a browser to cloudflare.
	CloudflareBypass bool
	UserAgent        string
	// Output receives a dump of every http exchange, it can be nil.
	Output telemetry.Output
	// Clock timestamps fetched pages, defaults to the portal's local time.
	Clock chrono.API
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// Client fetches invoice pages from the portal. It is safe for concurrent use,
// all callers share the same admission limiter.
type Client struct {
	http      *resty.Client
	baseUrl   string
	timeout   time.Duration
	admission *semaphore.Weighted
	// nil when pacing is disabled
	pacer    *rate.Limiter
	inFlight atomic.Int64
	clock    chrono.API

	tel telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	opts = opts.withDefaults()

	tel = telemetry.NewScopedAPI("itax", tel)

	parsedBaseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetHeader("accept", "text/html,application/xhtml+xml")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	telemetry.InstrumentResty(httpClient, tel, "kracheck.scrapers.itax", opts.Output)

	clock := opts.Clock
	if clock == nil {
		clock, err = portalClock()
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		http:      httpClient,
		baseUrl:   parsedBaseUrl.String(),
		timeout:   opts.Timeout,
		admission: semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		clock:     clock,
		tel:       tel,
	}
	if opts.RequestsPerSecond > 0 {
		// burst of 1 so requests are evenly spread
		c.pacer = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Fetch performs exactly one GET for the given invoice number. Any 2xx
// response is returned as is, everything else becomes a *Failure.
func (c *Client) Fetch(ctx context.Context, invoiceNumber string) (FetchedPage, error) {
	err := c.admission.Acquire(ctx, 1)
	if err != nil {
		return FetchedPage{}, c.transportFailure(invoiceNumber, err)
	}
	defer c.admission.Release(1)

	c.tel.ReportCount(report_client_in_flight, c.inFlight.Add(1))
	defer c.inFlight.Add(-1)

	if c.pacer != nil {
		err = c.pacer.Wait(ctx)
		if err != nil {
			return FetchedPage{}, c.pacingFailure(ctx, invoiceNumber, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("actionCode", "loadPage").
		SetQueryParam("invoiceNo", invoiceNumber).
		Get(c.baseUrl)
	if err != nil {
		return FetchedPage{}, c.transportFailure(invoiceNumber, err)
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("portal responded with status %s", res.Status())
		c.tel.ReportBroken(report_client_fetch, err, invoiceNumber)
		return FetchedPage{}, networkFailure(invoiceNumber, err)
	}

	pageUrl := c.baseUrl
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		pageUrl = res.RawResponse.Request.URL.String()
	}
	body := res.Body()
	return FetchedPage{
		Url:         pageUrl,
		RetrievedAt: c.clock.Now(),
		Size:        len(body),
		ContentType: res.Header().Get("content-type"),
		Body:        body,
	}, nil
}

// portalClock falls back to UTC on hosts without timezone data.
func portalClock() (chrono.API, error) {
	clock, err := chrono.NewStandardImpl(chrono.PortalLocation)
	if err == nil {
		return clock, nil
	}
	clock, err = chrono.NewStandardImpl("UTC")
	if err != nil {
		return nil, fmt.Errorf("load clock: %w", err)
	}
	return clock, nil
}

func (c *Client) transportFailure(invoiceNumber string, err error) *Failure {
	if isTimeout(err) {
		c.tel.ReportWarning(report_client_fetch, err, invoiceNumber)
		return timeoutFailure(invoiceNumber, err)
	}
	c.tel.ReportBroken(report_client_fetch, err, invoiceNumber)
	return networkFailure(invoiceNumber, err)
}

// pacingFailure handles the limiter refusing to wait past the caller's
// deadline, rate reports that before the deadline is reached and without
// wrapping context.DeadlineExceeded.
func (c *Client) pacingFailure(ctx context.Context, invoiceNumber string, err error) *Failure {
	_, hasDeadline := ctx.Deadline()
	if hasDeadline && ctx.Err() == nil {
		c.tel.ReportWarning(report_client_fetch, err, invoiceNumber)
		return timeoutFailure(invoiceNumber, err)
	}
	return c.transportFailure(invoiceNumber, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
