package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCR_FailureIsTypedNotThrown(t *testing.T) {
	o := NewOCR()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	res := o.Parse(context.Background(), png, "image/png")

	// default builds carry no tesseract binding, so the result reports a
	// typed failure either way
	require.NotNil(t, res)
	assert.Equal(t, "ocr", res.ParserName)
	if !res.Success {
		assert.NotEmpty(t, res.ErrorMessage)
	}
}
