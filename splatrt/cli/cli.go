// Package cli implements the gsplat command-line interface.
package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/cache"
	"github.com/gekko3d/gsplat/splatrt/rt/fetch"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
)

const appName = "gsplat"

// CLI holds state shared by all commands. Config and Logger are ready once
// the root command's PersistentPreRunE has run.
type CLI struct {
	Out io.Writer

	Config gsplat.Config
	Logger *gsplat.DefaultLogger

	logOut     io.Writer
	configPath string
	verbose    bool
}

func New(out, logOut io.Writer) *CLI {
	return &CLI{
		Out:    out,
		Config: gsplat.DefaultConfig(),
		Logger: gsplat.NewLoggerTo(logOut, appName, false),
		logOut: logOut,
	}
}

// RootCommand creates the root command with every headless subcommand.
// Commands that need a window are added by the caller.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "gsplat streams, sorts and renders Gaussian splat scenes",
		Version:      gsplat.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetVersionTemplate(gsplat.VersionTemplate())
	root.SetOut(c.Out)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.infoCommand())
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.sortCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.serveCommand())
	return root
}

func (c *CLI) setup() error {
	cfg, err := gsplat.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Log.Debug = true
	}
	c.Config = cfg
	c.Logger = gsplat.NewLoggerTo(c.logOut, cfg.Log.Prefix, cfg.Log.Debug)
	return nil
}

// NewCache opens the configured decode cache. A backend that cannot be
// reached degrades to no caching.
func (c *CLI) NewCache() cache.Cache {
	cc, err := cache.New(c.Config.Cache)
	if err != nil {
		c.Logger.Warnf("cache disabled: %v", err)
		return cache.NewNullCache()
	}
	return cc
}

// decoder returns the PLY decoder, memoized through the configured cache.
func (c *CLI) decoder(cc cache.Cache) func([]byte) ([]byte, error) {
	return cache.Decoder(cc, c.Config.Cache.TTL, c.Logger, func(raw []byte) ([]byte, error) {
		return ply.DecodeWithOptions(raw, ply.DecodeOptions{Logger: c.Logger})
	})
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// readSource reads a local path or downloads a URL.
func (c *CLI) readSource(ctx context.Context, src string) ([]byte, error) {
	if !isURL(src) {
		return os.ReadFile(src)
	}
	sink := &collectSink{}
	f := fetch.New(fetch.Options{
		Client:    http.DefaultClient,
		ChunkSize: c.Config.Stream.ChunkSize,
		Logger:    c.Logger,
	})
	if err := f.Stream(ctx, src, sink); err != nil {
		return nil, err
	}
	return sink.data, nil
}

// loadRecords returns the packed records of src, decoding PLY input.
func (c *CLI) loadRecords(ctx context.Context, src string) ([]byte, error) {
	raw, err := c.readSource(ctx, src)
	if err != nil {
		return nil, err
	}
	if !ply.HasMagic(raw) {
		return raw, nil
	}
	cc := c.NewCache()
	defer cc.Close()
	return c.decoder(cc)(raw)
}

// collectSink keeps the last complete view of a stream.
type collectSink struct {
	data []byte
}

func (s *collectSink) BeginStream() {
	s.data = nil
}

func (s *collectSink) AppendBytes(buf []byte, totalLength int) {
	s.data = buf[:min(totalLength, len(buf))]
}

func (s *collectSink) LoadSourceFormat(raw []byte) {
	s.data = raw
}

func (s *collectSink) CompleteStream()      {}
func (s *collectSink) FailStream(err error) {}
