package itax

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// validate accepts fields that carry both critical values.
func validate(invoiceNumber string, fields ExtractedFields) error {
	if !fields.hasCritical() {
		return structureFailure(invoiceNumber)
	}
	return nil
}

// echoMismatch compares the invoice number the portal echoed back with the
// one requested. The portal sometimes reformats the number, so a mismatch is
// only ever reported, the similarity helps tell reformatting apart from a
// genuinely different invoice.
func echoMismatch(requested, extracted string) (mismatch bool, similarity float64) {
	requested = strings.TrimSpace(requested)
	if requested == extracted {
		return false, 1
	}
	return true, matchr.JaroWinkler(requested, extracted, false)
}
