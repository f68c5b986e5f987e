package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat/splatrt/rt/dataset"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

// Summary is what info reports about a record buffer.
type Summary struct {
	Count    int
	Min, Max [3]float32
	// MeanScale is the mean of the per-axis scales.
	MeanScale [3]float32
	// MeanAlpha is in [0,1].
	MeanAlpha float32
}

// Summarize scans every record of buf.
func Summarize(buf []byte) Summary {
	s := Summary{Count: record.Count(buf)}
	if s.Count == 0 {
		return s
	}
	for k := 0; k < 3; k++ {
		s.Min[k] = float32(math.Inf(1))
		s.Max[k] = float32(math.Inf(-1))
	}
	var scale [3]float64
	var alpha float64
	for i := 0; i < s.Count; i++ {
		r := record.Decode(buf, i)
		for k := 0; k < 3; k++ {
			s.Min[k] = min(s.Min[k], r.Position[k])
			s.Max[k] = max(s.Max[k], r.Position[k])
			scale[k] += float64(r.Scale[k])
		}
		alpha += float64(r.Color[3]) / 255
	}
	n := float64(s.Count)
	for k := 0; k < 3; k++ {
		s.MeanScale[k] = float32(scale[k] / n)
	}
	s.MeanAlpha = float32(alpha / n)
	return s
}

func (c *CLI) infoCommand() *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Describe a .splat or .ply file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := dataset.Stat(args[0])
			if err != nil {
				return err
			}
			w := c.Out
			printTitle(w, info.Name)
			printField(w, "format", "%s", info.Format)
			printField(w, "size", "%s", humanBytes(info.Size))
			printField(w, "splats", "%d", info.Splats)

			if h := info.Header; h != nil {
				printField(w, "ply format", "%s %s", h.Format, h.Version)
				printField(w, "row stride", "%d bytes", h.Stride)
				printField(w, "properties", "%d", len(h.Columns))
				for _, cm := range h.Comments {
					printDetail(w, "comment: %s", cm)
				}

				raw, err := c.readSource(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				ranges, err := ply.Ranges(raw, columns...)
				if err != nil {
					return err
				}
				for _, r := range ranges {
					printDetail(w, "%-8s %-12s %12.4g .. %-12.4g", r.Column.Type, r.Column.Name, r.Min, r.Max)
				}
				return nil
			}

			if info.Size%record.Stride != 0 {
				printWarning(w, "%d trailing bytes are not a whole record", info.Size%record.Stride)
			}
			buf, err := c.readSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s := Summarize(buf)
			if s.Count == 0 {
				return nil
			}
			printField(w, "bounds min", "%s", vec3(s.Min))
			printField(w, "bounds max", "%s", vec3(s.Max))
			printField(w, "mean scale", "%s", vec3(s.MeanScale))
			printField(w, "mean alpha", "%.3f", s.MeanAlpha)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "PLY properties to report ranges for (default all)")
	return cmd
}

func vec3(v [3]float32) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}
