package itax

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kracheck-backend/internal/components/chrono"
	"kracheck-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

const portalPath = "/KRA-Portal/invoiceChk.htm"

// fakePortal serves invoice pages and keeps track of how many requests it is
// handling at once.
type fakePortal struct {
	server    *httptest.Server
	hits      atomic.Int64
	active    atomic.Int64
	maxActive atomic.Int64
}

func newFakePortal(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, invoiceNo string)) *fakePortal {
	t.Helper()
	p := &fakePortal{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		n := p.active.Add(1)
		defer p.active.Add(-1)
		for {
			current := p.maxActive.Load()
			if n <= current || p.maxActive.CompareAndSwap(current, n) {
				break
			}
		}

		if r.URL.Path != portalPath || r.URL.Query().Get("actionCode") != "loadPage" {
			http.NotFound(w, r)
			return
		}
		handle(w, r, r.URL.Query().Get("invoiceNo"))
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) url() string {
	return p.server.URL + portalPath
}

func writeHTML(w http.ResponseWriter, markup string) {
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.Write([]byte(markup))
}

// waitOrGiveUp blocks until the client goes away, a stand in for a portal
// that never answers.
func waitOrGiveUp(r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(time.Second * 5):
	}
}

func newTestClient(t *testing.T, opts ClientOptions) *Client {
	t.Helper()
	client, err := NewClient(opts, telemetry.SlogAPI{})
	require.NoError(t, err)
	return client
}

func TestFetchSuccess(t *testing.T) {
	page := readFixture(t, "invoice_found.html")
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, invoiceNo string) {
		require.Equal(t, scenarioInvoiceNumber, invoiceNo)
		require.Contains(t, r.Header.Get("user-agent"), "Mozilla")
		writeHTML(w, page)
	})
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url()})

	fetched, err := client.Fetch(context.Background(), scenarioInvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, len(page), fetched.Size)
	require.Equal(t, page, string(fetched.Body))
	require.Contains(t, fetched.Url, "invoiceNo="+scenarioInvoiceNumber)
	require.Contains(t, fetched.Url, "actionCode=loadPage")
	require.False(t, fetched.RetrievedAt.IsZero())
	require.EqualValues(t, 1, portal.hits.Load())
}

func TestFetchTimestampsWithClock(t *testing.T) {
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeHTML(w, "<html></html>")
	})
	instant := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url(), Clock: chrono.FixedImpl{Instant: instant}})

	fetched, err := client.Fetch(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, instant, fetched.RetrievedAt)
}

func TestFetchDecodesCharset(t *testing.T) {
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		w.Header().Set("content-type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><div><table><tr><td><b>Supplier Name</b></td><td>Caf\xe9 Ltd</td></tr></table></div></body></html>"))
	})
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url()})

	fetched, err := client.Fetch(context.Background(), "1")
	require.NoError(t, err)
	doc, err := fetched.Document()
	require.NoError(t, err)
	require.Equal(t, "Café Ltd", tableWalk(doc).Get(SupplierName))
}

func TestFetchHttpError(t *testing.T) {
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url()})

	_, err := client.Fetch(context.Background(), "1")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, NetworkError, kind)
	require.Contains(t, err.Error(), "503")
}

func TestFetchTimeout(t *testing.T) {
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		waitOrGiveUp(r)
	})
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url(), Timeout: time.Millisecond * 100})

	start := time.Now()
	_, err := client.Fetch(context.Background(), "1")
	require.Less(t, time.Since(start), time.Second*3)

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, Timeout, kind)
	require.Equal(t, "request to KRA portal timed out for 1", err.Error())
}

func TestFetchPacingPastDeadline(t *testing.T) {
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeHTML(w, "<html></html>")
	})
	// one request every ~16 minutes, the second one can never be paced in time
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url(), RequestsPerSecond: 0.001})

	_, err := client.Fetch(context.Background(), "1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err = client.Fetch(ctx, "2")
	require.Less(t, time.Since(start), time.Millisecond*500)

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, Timeout, kind)
	require.EqualValues(t, 1, portal.hits.Load())
}

func TestFetchConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + portalPath
	server.Close()

	client := newTestClient(t, ClientOptions{BaseUrl: url})
	_, err := client.Fetch(context.Background(), "1")

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, NetworkError, kind)
	require.True(t, strings.HasPrefix(err.Error(), "network or HTTP error for 1: "))
}

func TestFetchCancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	portal := newFakePortal(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		writeHTML(w, "<html></html>")
	})
	client := newTestClient(t, ClientOptions{BaseUrl: portal.url(), MaxConcurrency: 1})

	done := make(chan error, 1)
	go func() {
		_, err := client.Fetch(context.Background(), "holder")
		done <- err
	}()
	require.Eventually(t, func() bool { return portal.active.Load() == 1 }, time.Second*2, time.Millisecond*5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, "queued")
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, NetworkError, kind)

	close(release)
	require.NoError(t, <-done)
	require.EqualValues(t, 1, portal.hits.Load())
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseUrl: "/KRA-Portal/invoiceChk.htm"}, telemetry.SlogAPI{})
	require.Error(t, err)
}

func TestClientOptionsDefaults(t *testing.T) {
	opts := ClientOptions{}.withDefaults()
	require.Equal(t, DefaultBaseUrl, opts.BaseUrl)
	require.Equal(t, time.Second*20, opts.Timeout)
	require.Equal(t, 5, opts.MaxConcurrency)
	require.NotEmpty(t, opts.UserAgent)
}
