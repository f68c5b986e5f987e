package core

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	ZNear float32 = 0.2
	ZFar  float32 = 200
)

// GSCamera is one entry of a cameras.json file written by the 3DGS training
// pipeline. Rotation is row-major camera-to-world.
type GSCamera struct {
	ID       int           `json:"id"`
	ImgName  string        `json:"img_name"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Position [3]float32    `json:"position"`
	Rotation [3][3]float32 `json:"rotation"`
	Fx       float32       `json:"fx"`
	Fy       float32       `json:"fy"`
}

// DefaultCamera is used when no cameras file is given.
var DefaultCamera = GSCamera{
	ID:       0,
	ImgName:  "00001",
	Width:    1959,
	Height:   1090,
	Position: [3]float32{-3.0089893469241797, -0.11086489695181866, -3.7527640949141428},
	Rotation: [3][3]float32{
		{0.876134201218856, 0.06925962026449776, 0.47706599800804744},
		{-0.04747421839895102, 0.9972110940209488, -0.057586739349882114},
		{-0.4797239414934443, 0.027805376500959853, 0.8769787916452908},
	},
	Fx: 1159.5880733038064,
	Fy: 1164.6601287484507,
}

// LoadCameras reads a cameras.json file.
func LoadCameras(path string) ([]GSCamera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras file: %w", err)
	}
	return ParseCameras(data)
}

func ParseCameras(data []byte) ([]GSCamera, error) {
	var cams []GSCamera
	if err := json.Unmarshal(data, &cams); err != nil {
		return nil, fmt.Errorf("failed to parse cameras: %w", err)
	}
	if len(cams) == 0 {
		return nil, fmt.Errorf("cameras file holds no cameras")
	}
	return cams, nil
}

// ViewMatrix builds the world-to-camera matrix for c.
func (c GSCamera) ViewMatrix() mgl32.Mat4 {
	r := c.Rotation
	t := c.Position
	return mgl32.Mat4{
		r[0][0], r[0][1], r[0][2], 0,
		r[1][0], r[1][1], r[1][2], 0,
		r[2][0], r[2][1], r[2][2], 0,
		-t[0]*r[0][0] - t[1]*r[1][0] - t[2]*r[2][0],
		-t[0]*r[0][1] - t[1]*r[1][1] - t[2]*r[2][1],
		-t[0]*r[0][2] - t[1]*r[1][2] - t[2]*r[2][2],
		1,
	}
}

// ProjectionMatrix is a pinhole projection from focal lengths in pixels. Y is
// flipped and depth maps to [0,1] for a WebGPU target.
func ProjectionMatrix(fx, fy float32, width, height int) mgl32.Mat4 {
	w, h := float32(width), float32(height)
	return mgl32.Mat4{
		2 * fx / w, 0, 0, 0,
		0, -2 * fy / h, 0, 0,
		0, 0, ZFar / (ZFar - ZNear), 1,
		0, 0, -(ZFar * ZNear) / (ZFar - ZNear), 0,
	}
}

// Forward is the view's depth axis, the row of vp the sorter reads.
func Forward(vp mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{vp[2], vp[6], vp[10]}
}
