package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/preview"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

func (c *CLI) previewCommand() *cobra.Command {
	var vf viewFlags
	var output, caption string
	var width, height int
	cmd := &cobra.Command{
		Use:   "preview <file|url>",
		Short: "Render a scene to PNG on the CPU",
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

			opts := preview.DefaultOptions()
			opts.Width, opts.Height = width, height
			// Keep the field of view of the configured window.
			opts.Fx = c.Config.Viewer.Fx * float32(width) / float32(c.Config.Viewer.Width)
			opts.Fy = c.Config.Viewer.Fy * float32(height) / float32(c.Config.Viewer.Height)
			opts.Caption = caption

			vp := core.ProjectionMatrix(opts.Fx, opts.Fy, width, height).Mul4(view)
			res, _ := sorter.New(sorter.DefaultOptions()).Sort(buf, record.Count(buf), vp)

			img := preview.Render(res, view, opts)
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := preview.WritePNG(f, img); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			printSuccess(c.Out, "rendered %d splats to %s", res.Len(), output)
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "preview.png", "PNG file to write")
	cmd.Flags().IntVar(&width, "width", 640, "image width")
	cmd.Flags().IntVar(&height, "height", 360, "image height")
	cmd.Flags().StringVar(&caption, "caption", "", "text drawn in the corner")
	return cmd
}
