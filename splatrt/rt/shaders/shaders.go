package shaders

import (
	_ "embed"
)

//go:embed splat.wgsl
var SplatWGSL string

//go:embed blit.wgsl
var BlitWGSL string
