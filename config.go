package gsplat

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration. Every field has a default in
// DefaultConfig; a TOML file only needs to name what it overrides.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Sorter SorterConfig `toml:"sorter"`
	Viewer ViewerConfig `toml:"viewer"`
	Stream StreamConfig `toml:"stream"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
}

type LogConfig struct {
	Prefix string `toml:"prefix"`
	Debug  bool   `toml:"debug"`
}

type SorterConfig struct {
	// SkipThreshold is the tolerance on |dot(prevForward, forward) - 1| under
	// which a sort at unchanged vertex count is skipped.
	SkipThreshold float32 `toml:"skip_threshold"`
	// DepthBias is added to every depth score to keep keys positive.
	DepthBias float32 `toml:"depth_bias"`
}

type ViewerConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`

	Fx float32 `toml:"fx"`
	Fy float32 `toml:"fy"`

	// Datasets with more splats than this render at half resolution.
	DownsampleAbove int `toml:"downsample_above"`

	DefaultView [16]float32 `toml:"default_view"`
	Carousel    bool        `toml:"carousel"`
	CamerasFile string      `toml:"cameras_file"`
}

type StreamConfig struct {
	BaseURL     string `toml:"base_url"`
	DefaultFile string `toml:"default_file"`
	ChunkSize   int    `toml:"chunk_size"`
}

type CacheConfig struct {
	// Backend is one of "none", "file" or "redis".
	Backend   string        `toml:"backend"`
	Dir       string        `toml:"dir"`
	RedisAddr string        `toml:"redis_addr"`
	RedisDB   int           `toml:"redis_db"`
	TTL       time.Duration `toml:"ttl"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	Dir  string `toml:"dir"`
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Prefix: "gsplat"},
		Sorter: SorterConfig{
			SkipThreshold: 0.01,
			DepthBias:     10000,
		},
		Viewer: ViewerConfig{
			Width:           1280,
			Height:          720,
			Title:           "gsplat",
			Fx:              1159.5880733038064,
			Fy:              1164.6601287484507,
			DownsampleAbove: 500000,
			DefaultView: [16]float32{
				0.47, 0.04, 0.88, 0,
				-0.11, 0.99, 0.02, 0,
				-0.88, -0.11, 0.47, 0,
				0.07, 0.03, 6.55, 1,
			},
			Carousel: true,
		},
		Stream: StreamConfig{
			BaseURL:     "https://huggingface.co/cakewalk/splat-data/resolve/main/",
			DefaultFile: "train.splat",
			ChunkSize:   64 * 1024,
		},
		Cache: CacheConfig{
			Backend:   "none",
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
			Dir:  ".",
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, WrapError(ErrCodeInvalidConfig, err, "failed to read %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, WrapError(ErrCodeInvalidConfig, err, "failed to parse config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Sorter.SkipThreshold < 0 {
		return NewError(ErrCodeInvalidConfig, "sorter.skip_threshold must be >= 0, got %g", c.Sorter.SkipThreshold)
	}
	if c.Viewer.Width <= 0 || c.Viewer.Height <= 0 {
		return NewError(ErrCodeInvalidConfig, "viewer size must be positive, got %dx%d", c.Viewer.Width, c.Viewer.Height)
	}
	if c.Viewer.Fx <= 0 || c.Viewer.Fy <= 0 {
		return NewError(ErrCodeInvalidConfig, "viewer focal lengths must be positive")
	}
	if c.Stream.ChunkSize <= 0 {
		return NewError(ErrCodeInvalidConfig, "stream.chunk_size must be positive, got %d", c.Stream.ChunkSize)
	}
	switch c.Cache.Backend {
	case "none", "file", "redis":
	default:
		return NewError(ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		return NewError(ErrCodeInvalidConfig, "cache.dir is required for the file backend")
	}
	return nil
}

// NewLogger builds the DefaultLogger described by the [log] section.
func (c Config) NewLogger() *DefaultLogger {
	return NewDefaultLogger(c.Log.Prefix, c.Log.Debug)
}
