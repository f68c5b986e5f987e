package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

func (c *CLI) convertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in.ply> <out.splat>",
		Short: "Convert a PLY scene to packed .splat records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.readSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ply.HasMagic(raw) {
				return gsplat.NewError(gsplat.ErrCodeUnsupportedFormat, "%s is not a PLY file", args[0])
			}

			cc := c.NewCache()
			defer cc.Close()
			start := time.Now()
			out, err := c.decoder(cc)(raw)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], out, 0644); err != nil {
				return err
			}
			printSuccess(c.Out, "wrote %d splats to %s", record.Count(out), args[1])
			printDetail(c.Out, "%s in, %s out, %s", humanBytes(int64(len(raw))), humanBytes(int64(len(out))), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
