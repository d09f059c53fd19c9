package itax

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractedFieldsJSONOrder(t *testing.T) {
	fields := expectedFields(map[Field]string{
		SupplierName:             "ACME \"QUOTED\"",
		ControlUnitInvoiceNumber: scenarioInvoiceNumber,
		TotalTaxAmount:           "0",
	})

	encoded, err := json.Marshal(fields)
	require.NoError(t, err)
	require.Equal(t,
		`{"Control Unit Invoice Number":"0010195720000234911","Trader System Invoice No":"","Invoice Date":"",`+
			`"Total Taxable Amount":"","Total Tax Amount":"0","Total Invoice Amount":"","Supplier Name":"ACME \"QUOTED\""}`,
		string(encoded),
	)

	var decoded ExtractedFields
	err = json.Unmarshal([]byte(`{"Supplier Name":"ACME","Unknown":"x","Invoice Date":"14/03/2024"}`), &decoded)
	require.NoError(t, err)
	require.Equal(t, "ACME", decoded.Get(SupplierName))
	require.Equal(t, "14/03/2024", decoded.Get(InvoiceDate))
	require.False(t, decoded.Has(ControlUnitInvoiceNumber))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", timeoutFailure("1", errors.New("deadline")))
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, Timeout, kind)
	require.Equal(t, "timeout", kind.String())

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestParseErrorKind(t *testing.T) {
	for k := Timeout; k <= Unexpected; k++ {
		parsed, ok := ParseErrorKind(k.String())
		require.True(t, ok)
		require.Equal(t, k, parsed)
	}

	_, ok := ParseErrorKind("ErrorKind(0)")
	require.False(t, ok)
}
