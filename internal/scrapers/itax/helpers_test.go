package itax

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const scenarioInvoiceNumber = "0010195720000234911"

func readFixture(t testing.TB, name string) string {
	t.Helper()
	contents, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(contents)
}

func parseDocument(t testing.TB, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func fixtureDocument(t testing.TB, name string) *goquery.Document {
	t.Helper()
	return parseDocument(t, readFixture(t, name))
}

func expectedFields(values map[Field]string) ExtractedFields {
	var out ExtractedFields
	for f, v := range values {
		out.Set(f, v)
	}
	return out
}
