package core

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// FormatViewMatrix renders m as a JSON array with every element rounded to
// two decimals, short enough to paste on a command line or into a URL.
func FormatViewMatrix(m mgl32.Mat4) string {
	vals := make([]float64, 16)
	for i, v := range m {
		vals[i] = math.Round(float64(v)*100) / 100
	}
	out, _ := json.Marshal(vals)
	return string(out)
}

// ParseViewMatrix accepts the output of FormatViewMatrix, optionally
// URL-escaped and prefixed with '#'.
func ParseViewMatrix(s string) (mgl32.Mat4, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	var vals []float32
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return mgl32.Mat4{}, fmt.Errorf("failed to parse view matrix: %w", err)
	}
	if len(vals) != 16 {
		return mgl32.Mat4{}, fmt.Errorf("view matrix needs 16 values, got %d", len(vals))
	}
	var m mgl32.Mat4
	copy(m[:], vals)
	return m, nil
}
