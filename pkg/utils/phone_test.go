package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePhone(t *testing.T) {
	assert.Equal(t, "+15551234567", SanitizePhone("+1 (555) 123-4567"))
	assert.Equal(t, "+15551234567", SanitizePhone("+15551234567"))
	assert.Equal(t, "+5551234567", SanitizePhone("555.123.4567"))
	assert.Equal(t, "", SanitizePhone("---"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+1555***", MaskPhone("+15551234567"))
	assert.Equal(t, "+1", MaskPhone("+1"))
}
