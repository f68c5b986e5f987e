package cli

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// viewFlags are shared by commands that look at a scene.
type viewFlags struct {
	view   string
	camera int
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.view, "view", "", "view matrix as printed by the viewer's share key")
	cmd.Flags().IntVar(&f.camera, "camera", -1, "use a preset from the cameras file instead of the default view")
}

// resolve picks the view matrix: --view, then --camera, then the config.
func (f *viewFlags) resolve(c *CLI) (mgl32.Mat4, error) {
	if f.view != "" {
		return core.ParseViewMatrix(f.view)
	}
	if f.camera >= 0 {
		cams := []core.GSCamera{core.DefaultCamera}
		if c.Config.Viewer.CamerasFile != "" {
			loaded, err := core.LoadCameras(c.Config.Viewer.CamerasFile)
			if err != nil {
				return mgl32.Mat4{}, err
			}
			cams = loaded
		}
		if f.camera < len(cams) {
			return cams[f.camera].ViewMatrix(), nil
		}
		c.Logger.Warnf("no camera %d, using the default view", f.camera)
	}
	return mgl32.Mat4(c.Config.Viewer.DefaultView), nil
}

func (c *CLI) sortCommand() *cobra.Command {
	var vf viewFlags
	var rounds int
	cmd := &cobra.Command{
		Use:   "sort <file|url>",
		Short: "Time depth sorting of a scene from a fixed view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := c.loadRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view, err := vf.resolve(c)
			if err != nil {
				return err
			}
			v := c.Config.Viewer
			vp := core.ProjectionMatrix(v.Fx, v.Fy, v.Width, v.Height).Mul4(view)

			s := sorter.New(sorter.Options{
				SkipThreshold: c.Config.Sorter.SkipThreshold,
				DepthBias:     c.Config.Sorter.DepthBias,
			})
			n := record.Count(buf)

			var total, best time.Duration
			ran := 0
			for i := 0; i < rounds; i++ {
				// Without this every round after the first is skipped.
				s.Invalidate()
				start := time.Now()
				if _, ok := s.Sort(buf, n, vp); !ok {
					continue
				}
				d := time.Since(start)
				total += d
				if ran == 0 || d < best {
					best = d
				}
				ran++
			}
			_, again := s.Sort(buf, n, vp)

			printTitle(c.Out, args[0])
			printField(c.Out, "splats", "%d", n)
			printField(c.Out, "rounds", "%d", ran)
			if ran > 0 {
				printField(c.Out, "mean", "%s", (total / time.Duration(ran)).Round(time.Microsecond))
				printField(c.Out, "best", "%s", best.Round(time.Microsecond))
			}
			printField(c.Out, "repeat view", "%s", map[bool]string{true: "sorted", false: "skipped"}[again])
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 5, "number of timed sorts")
	return cmd
}
