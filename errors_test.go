package gsplat

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := NewError(ErrCodeUnknownField, "no property %q", "x")
	assert.Equal(t, `UNKNOWN_FIELD: no property "x"`, err.Error())

	wrapped := WrapError(ErrCodeStreamFailed, io.ErrUnexpectedEOF, "read failed")
	assert.Equal(t, "STREAM_FAILED: read failed: unexpected EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
}

func TestIsAndCodeOf(t *testing.T) {
	base := NewError(ErrCodeBodyTruncated, "short body")
	chained := fmt.Errorf("decode: %w", base)

	if !Is(chained, ErrCodeBodyTruncated) {
		t.Error("Is should find the code through fmt wrapping")
	}
	if Is(chained, ErrCodeHeaderMalformed) {
		t.Error("Is matched the wrong code")
	}
	assert.Equal(t, ErrCodeBodyTruncated, CodeOf(chained))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, ErrCodeCache))
}
