package cli

import (
	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat/splatrt/rt/server"
)

func (c *CLI) serveCommand() *cobra.Command {
	var dir, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory of datasets over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dir") {
				c.Config.Server.Dir = dir
			}
			if cmd.Flags().Changed("addr") {
				c.Config.Server.Addr = addr
			}
			cc := c.NewCache()
			defer cc.Close()

			srv := server.New(server.Options{
				Dir:      c.Config.Server.Dir,
				Addr:     c.Config.Server.Addr,
				Logger:   c.Logger,
				Cache:    cc,
				CacheTTL: c.Config.Cache.TTL,
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "dataset directory (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
