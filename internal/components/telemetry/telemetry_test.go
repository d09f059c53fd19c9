package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("itax", NewScopedAPI("scraper", rec))

	scoped.ReportWarning("validate.mismatch", "a", "b")
	scoped.ReportBroken("client.fetch")
	scoped.ReportCount("lookups.in-flight", 3)

	warnings := rec.Reports("warning", "validate.mismatch")
	require.Len(t, warnings, 1)
	require.Equal(t, "scraper: itax: validate.mismatch", warnings[0].ID)
	require.Equal(t, []any{"a", "b"}, warnings[0].Params)

	require.Len(t, rec.Reports("broken", "client.fetch"), 1)
	counts := rec.Reports("count", "lookups.in-flight")
	require.Len(t, counts, 1)
	require.Equal(t, []any{int64(3)}, counts[0].Params)

	require.Empty(t, rec.Reports("debug", ""))
}
