package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// DefaultPath is the file Load reads when no path is given.
const DefaultPath = "revolution.toml"

const (
	BackendHeadless = "headless"
	BackendVulkan   = "vulkan"
)

type TargetConfig struct {
	Width     uint32 `toml:"width"`
	Height    uint32 `toml:"height"`
	AntiAlias string `toml:"anti_alias"`
}

type DescriptorConfig struct {
	PoolSize uint32 `toml:"pool_size"`
}

type StreamingConfig struct {
	BufferSize uint64 `toml:"buffer_size"`
}

type ShaderConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type DebugConfig struct {
	PreviewDir   string `toml:"preview_dir"`
	PreviewScale uint32 `toml:"preview_scale"`
}

/** @brief Everything the sample driver reads from revolution.toml. */
type Config struct {
	LogLevel    string           `toml:"log_level"`
	Backend     string           `toml:"backend"`
	Frames      int              `toml:"frames"`
	Target      TargetConfig     `toml:"target"`
	Descriptors DescriptorConfig `toml:"descriptors"`
	Streaming   StreamingConfig  `toml:"streaming"`
	Shaders     ShaderConfig     `toml:"shaders"`
	Debug       DebugConfig      `toml:"debug"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Backend:  BackendHeadless,
		Frames:   3,
		Target: TargetConfig{
			Width:     1280,
			Height:    720,
			AntiAlias: "none",
		},
		Descriptors: DescriptorConfig{PoolSize: 3},
		Streaming:   StreamingConfig{BufferSize: 64 << 20},
		Shaders:     ShaderConfig{Dir: "assets/shaders"},
		Debug:       DebugConfig{PreviewScale: 4},
	}
}

// Load returns Default overlaid with the file at path. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogDebug("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays the TOML in data on cfg and validates the result. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Backend != BackendHeadless && c.Backend != BackendVulkan {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Frames <= 0 {
		errs = append(errs, fmt.Errorf("frames must be positive, got %d", c.Frames))
	}
	if c.Target.Width == 0 || c.Target.Height == 0 {
		errs = append(errs, fmt.Errorf("target size %dx%d is empty", c.Target.Width, c.Target.Height))
	}
	if aa, err := ParseAntiAlias(c.Target.AntiAlias); err != nil {
		errs = append(errs, err)
	} else if aa != metadata.AntiAliasNone && c.Backend == BackendVulkan {
		// Multisampled targets are not resolved before they are sampled.
		errs = append(errs, fmt.Errorf("anti alias %q is not supported by the vulkan backend", c.Target.AntiAlias))
	}
	if c.Descriptors.PoolSize == 0 {
		errs = append(errs, errors.New("descriptor pool size must be positive"))
	}
	if c.Streaming.BufferSize == 0 {
		errs = append(errs, errors.New("streaming buffer size must be positive"))
	}
	if c.Debug.PreviewScale == 0 {
		errs = append(errs, errors.New("preview scale must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) TargetSize() math.Vec2u {
	return math.NewVec2u(c.Target.Width, c.Target.Height)
}

func (c Config) AntiAlias() metadata.AntiAlias {
	aa, _ := ParseAntiAlias(c.Target.AntiAlias)
	return aa
}

func ParseAntiAlias(s string) (metadata.AntiAlias, error) {
	switch s {
	case "", "none":
		return metadata.AntiAliasNone, nil
	case "msaa2x":
		return metadata.AntiAliasMSAA2x, nil
	case "msaa4x":
		return metadata.AntiAliasMSAA4x, nil
	case "msaa8x":
		return metadata.AntiAliasMSAA8x, nil
	}
	return metadata.AntiAliasNone, fmt.Errorf("unknown anti alias mode %q", s)
}
