package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter_PassesOnEqualAfterNormalization(t *testing.T) {
	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).Assert("  line one  \nline two\t\n", "line one\nline two")
	assert.Empty(t, rec.failures, "trailing whitespace and surrounding space MUST be ignored by default")
}

func TestTextAsserter_ReportsUnifiedDiff(t *testing.T) {
	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).Assert("alpha\ngamma", "alpha\nbeta")
	if assert.Len(t, rec.failures, 1) {
		assert.Contains(t, rec.failures[0], "-beta")
		assert.Contains(t, rec.failures[0], "+gamma")
	}
}

func TestTextAsserter_IgnoreEmptyLines(t *testing.T) {
	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).
		WithOptions(WithIgnoreEmptyLines(true)).
		Assert("a\n\n\nb", "a\nb")
	assert.Empty(t, rec.failures)
}
