package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintExtractorDefaultRule(t *testing.T) {
	h, err := NewHintExtractor("", 0)
	require.NoError(t, err)

	// The documented example: second hyphen-delimited group 129999,
	// hint is its two leading digits.
	hint, ok := h.Extract("066-129999-9.pdf")
	require.True(t, ok)
	assert.Equal(t, "12", hint)
}

func TestHintExtractorNoMatch(t *testing.T) {
	h, err := NewHintExtractor("", 0)
	require.NoError(t, err)

	for _, name := range []string{"report.pdf", "abc-12.pdf", "-129999-9.pdf", ""} {
		hint, ok := h.Extract(name)
		assert.False(t, ok, "expected no hint for %q", name)
		assert.Empty(t, hint)
	}
}

func TestHintExtractorCustomRule(t *testing.T) {
	h, err := NewHintExtractor(`^lab_([a-z]+)_`, 1)
	require.NoError(t, err)

	hint, ok := h.Extract("lab_chem_20260829.pdf")
	require.True(t, ok)
	assert.Equal(t, "chem", hint)
}

func TestHintExtractorDeterministic(t *testing.T) {
	h, err := NewHintExtractor("", 0)
	require.NoError(t, err)

	first, ok1 := h.Extract("066-129999-9.pdf")
	second, ok2 := h.Extract("066-129999-9.pdf")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestHintExtractorBadConfig(t *testing.T) {
	_, err := NewHintExtractor(`([`, 1)
	assert.Error(t, err)

	_, err = NewHintExtractor(`^([0-9]+)-`, 2)
	assert.Error(t, err)
}
