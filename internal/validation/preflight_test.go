package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/crucible/internal/errors"
)

func TestValidateRejectsEmptySource(t *testing.T) {
	testCases := []struct {
		name   string
		source string
	}{
		{"empty string", ""},
		{"whitespace only", "   \t\n  "},
		{"newlines only", "\n\n\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(NewSourceDocument(tc.source))
			require.Error(t, err)
			assert.Equal(t, errors.PhaseValidation, errors.PhaseOf(err))
		})
	}
}

func TestValidateRejectsOversizedSource(t *testing.T) {
	big := strings.Repeat("a", MaxSourceBytes+1)

	_, err := Validate(NewSourceDocument(big))
	require.Error(t, err)
	assert.Equal(t, errors.PhaseValidation, errors.PhaseOf(err))
	assert.Contains(t, err.Error(), "exceeds the maximum")
}

func TestValidateAcceptsSourceAtLimit(t *testing.T) {
	source := strings.Repeat("a", MaxSourceBytes)

	out, err := Validate(NewSourceDocument(source))
	require.NoError(t, err)
	assert.Equal(t, source, out)
}

func TestValidatePassesTextThroughUnchanged(t *testing.T) {
	source := "export default () => <p>hi</p>;\n"

	out, err := Validate(NewSourceDocument(source))
	require.NoError(t, err)
	assert.Equal(t, source, out)
}

func TestValidateRejectsInvalidUTF8(t *testing.T) {
	_, err := Validate(NewSourceDocument("export default \xff\xfe"))
	require.Error(t, err)
	assert.Equal(t, errors.PhaseValidation, errors.PhaseOf(err))
}
