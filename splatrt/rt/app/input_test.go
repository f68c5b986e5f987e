package app

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
)

func TestKeyStateFrom(t *testing.T) {
	held := map[glfw.Key]bool{glfw.KeyUp: true, glfw.KeyRightShift: true, glfw.KeyJ: true, glfw.KeySpace: true}
	ks := keyStateFrom(func(k glfw.Key) bool { return held[k] })
	assert.Equal(t, core.KeyState{Forward: true, Shift: true, OrbitLeft: true, Jump: true}, ks)

	assert.Equal(t, core.KeyState{}, keyStateFrom(func(glfw.Key) bool { return false }))
}

func TestDigitKey(t *testing.T) {
	assert.Equal(t, 0, digitKey(glfw.Key0))
	assert.Equal(t, 7, digitKey(glfw.Key7))
	assert.Equal(t, 3, digitKey(glfw.KeyKP3))
	assert.Equal(t, -1, digitKey(glfw.KeyA))
}
