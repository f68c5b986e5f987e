package main

import (
	"context"
	"errors"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat/splatrt/cli"
	"github.com/gekko3d/gsplat/splatrt/rt/app"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/fetch"
	"github.com/gekko3d/gsplat/splatrt/rt/viewer"
)

func viewCommand(c *cli.CLI) *cobra.Command {
	var export, view string
	cmd := &cobra.Command{
		Use:   "view [file|url]",
		Short: "Open a scene in the GPU viewer",
		Long: `Open a scene in the GPU viewer. Without an argument the default scene is
streamed from the configured base URL. Files can also be dropped on the window.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg := c.Config
			src := ""
			if len(args) == 1 {
				src = args[0]
			} else {
				u, err := fetch.ResolveURL(cfg.Stream.BaseURL, cfg.Stream.DefaultFile)
				if err != nil {
					return err
				}
				src = u
			}

			cc := c.NewCache()
			defer cc.Close()
			session, err := viewer.NewSession(viewer.Options{
				Config:     cfg,
				Logger:     c.Logger,
				Cache:      cc,
				ExportPath: export,
			})
			if err != nil {
				return err
			}
			if view != "" {
				m, err := core.ParseViewMatrix(view)
				if err != nil {
					return err
				}
				session.Controls.SetView(m)
			}
			if err := session.Start(ctx); err != nil {
				return err
			}
			defer session.Stop()

			if err := glfw.Init(); err != nil {
				return err
			}
			defer glfw.Terminate()

			glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
			window, err := glfw.CreateWindow(cfg.Viewer.Width, cfg.Viewer.Height, cfg.Viewer.Title, nil, nil)
			if err != nil {
				return err
			}
			defer window.Destroy()

			application := app.NewApp(window, session, c.Logger)
			if err := application.Init(); err != nil {
				return err
			}
			defer application.Release()

			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				go func() {
					if err := session.LoadURL(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
						c.Logger.Errorf("view: %v", err)
					}
				}()
			} else if err := session.LoadFile(src); err != nil {
				return err
			}

			for !window.ShouldClose() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glfw.PollEvents()
				application.Update()
				application.Render()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "write decoded PLY scenes to this .splat file")
	cmd.Flags().Lookup("export").NoOptDefVal = "model.splat"
	cmd.Flags().StringVar(&view, "view", "", "initial view matrix")
	return cmd
}
