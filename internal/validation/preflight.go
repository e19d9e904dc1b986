// Package validation provides preflight checks over untrusted template
// source before it reaches the transpiler.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/crucible/internal/errors"
)

// MaxSourceBytes is the fixed upper bound on raw source length.
const MaxSourceBytes = 256_000

// SourceDocument is raw template text plus its byte length. It exists only
// for the duration of one pipeline invocation and is owned by the caller.
type SourceDocument struct {
	Text   string
	Length int
}

// NewSourceDocument wraps raw text for preflight validation.
func NewSourceDocument(text string) SourceDocument {
	return SourceDocument{Text: text, Length: len(text)}
}

// Validate rejects empty or oversized source. On success the text passes
// through unchanged; there are no side effects.
func Validate(doc SourceDocument) (string, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return "", errors.NewValidationError("template source is empty")
	}

	if doc.Length > MaxSourceBytes {
		return "", errors.NewValidationError(fmt.Sprintf(
			"template source is %d bytes, which exceeds the maximum of %d bytes",
			doc.Length, MaxSourceBytes,
		))
	}

	if !utf8.ValidString(doc.Text) {
		return "", errors.NewValidationError("template source is not valid UTF-8")
	}

	return doc.Text, nil
}
