// Package config resolves run settings from defaults, an optional TOML file,
// DEGRADE_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"phash-degrade/internal/algorithms"
	"phash-degrade/internal/core"
	imgio "phash-degrade/internal/io"
)

const (
	configName = "degrade"
	envPrefix  = "DEGRADE"
)

type Config struct {
	Source     string           `mapstructure:"source"`
	OutputDir  string           `mapstructure:"output_dir"`
	Seed       int64            `mapstructure:"seed"`
	Parallel   bool             `mapstructure:"parallel"`
	Manifest   string           `mapstructure:"manifest"`
	Debug      bool             `mapstructure:"debug"`
	Blur       BlurConfig       `mapstructure:"blur"`
	Downscale  DownscaleConfig  `mapstructure:"downscale"`
	Corruption CorruptionConfig `mapstructure:"corruption"`
	Encode     EncodeConfig     `mapstructure:"encode"`

	// SeedSet is false when no seed was configured and Seed was drawn from
	// the clock.
	SeedSet bool `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type BlurConfig struct {
	KernelSize int     `mapstructure:"kernel_size"`
	Sigma      float64 `mapstructure:"sigma"`
}

type DownscaleConfig struct {
	Divisor int `mapstructure:"divisor"`
}

type CorruptionConfig struct {
	PixelFraction     float64 `mapstructure:"pixel_fraction"`
	BlockCount        int     `mapstructure:"block_count"`
	BlockMin          int     `mapstructure:"block_min"`
	BlockMax          int     `mapstructure:"block_max"`
	MotionProbability float64 `mapstructure:"motion_probability"`
	MotionKernelSizes []int   `mapstructure:"motion_kernel_sizes"`
	MotionAxis        string  `mapstructure:"motion_axis"`
}

type EncodeConfig struct {
	Quality int `mapstructure:"quality"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("parallel", false)
	v.SetDefault("manifest", "")
	v.SetDefault("debug", false)

	v.SetDefault("blur.kernel_size", algorithms.DefaultBlurKernelSize)
	v.SetDefault("blur.sigma", 0.0)

	v.SetDefault("downscale.divisor", algorithms.DefaultDownscaleDivisor)

	v.SetDefault("corruption.pixel_fraction", algorithms.DefaultPixelFraction)
	v.SetDefault("corruption.block_count", algorithms.DefaultBlockCount)
	v.SetDefault("corruption.block_min", algorithms.DefaultBlockMin)
	v.SetDefault("corruption.block_max", algorithms.DefaultBlockMax)
	v.SetDefault("corruption.motion_probability", algorithms.DefaultMotionProbability)
	v.SetDefault("corruption.motion_kernel_sizes", algorithms.DefaultMotionKernelSizes())
	v.SetDefault("corruption.motion_axis", string(algorithms.DefaultMotionAxis))

	v.SetDefault("encode.quality", imgio.DefaultJPEGQuality)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or degrade.toml from the working directory or the
// user config directory when configFile is empty, and decodes v into a
// validated Config. A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapError(core.ErrCodeInvalidParameter, err, "failed to read config file %s", configFile)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, core.WrapError(core.ErrCodeInvalidParameter, err, "failed to read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.WrapError(core.ErrCodeInvalidParameter, err, "failed to parse config")
	}
	cfg.File = v.ConfigFileUsed()

	cfg.SeedSet = v.IsSet("seed")
	if !cfg.SeedSet {
		cfg.Seed = time.Now().UnixNano()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every stage parameter and the encode settings.
func (c *Config) Validate() error {
	if c.Source == "" {
		return core.NewError(core.ErrCodeInvalidParameter, "no source image given")
	}

	if _, err := algorithms.NewGaussianBlur(c.Blur.KernelSize, c.Blur.Sigma); err != nil {
		return err
	}
	if _, err := algorithms.NewDownscale(c.Downscale.Divisor); err != nil {
		return err
	}
	if err := c.NoiseSpec().Validate(); err != nil {
		return err
	}
	motion, err := c.MotionSpec()
	if err != nil {
		return err
	}
	if err := motion.Validate(); err != nil {
		return err
	}

	if c.Encode.Quality < imgio.MinQuality || c.Encode.Quality > imgio.MaxQuality {
		return core.NewError(core.ErrCodeInvalidParameter, "encode.quality must be in [%d, %d], got %d",
			imgio.MinQuality, imgio.MaxQuality, c.Encode.Quality)
	}
	return nil
}

func (c *Config) NoiseSpec() algorithms.NoiseSpec {
	return algorithms.NoiseSpec{
		PixelFraction: c.Corruption.PixelFraction,
		BlockCount:    c.Corruption.BlockCount,
		BlockMin:      c.Corruption.BlockMin,
		BlockMax:      c.Corruption.BlockMax,
	}
}

func (c *Config) MotionSpec() (algorithms.MotionSpec, error) {
	axis, err := algorithms.ParseAxis(c.Corruption.MotionAxis)
	if err != nil {
		return algorithms.MotionSpec{}, err
	}
	return algorithms.MotionSpec{
		Probability: c.Corruption.MotionProbability,
		KernelSizes: c.Corruption.MotionKernelSizes,
		Axis:        axis,
	}, nil
}

// Stages builds the three configured stages. rng drives the corruption stage.
func (c *Config) Stages(rng algorithms.Rand) (blur, downscale, corruption algorithms.Stage, err error) {
	b, err := algorithms.NewGaussianBlur(c.Blur.KernelSize, c.Blur.Sigma)
	if err != nil {
		return nil, nil, nil, err
	}
	d, err := algorithms.NewDownscale(c.Downscale.Divisor)
	if err != nil {
		return nil, nil, nil, err
	}
	motion, err := c.MotionSpec()
	if err != nil {
		return nil, nil, nil, err
	}
	cr, err := algorithms.NewCorruption(c.NoiseSpec(), motion, rng)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, d, cr, nil
}

// ManifestPath resolves the manifest location: relative paths are placed in
// dir. An empty setting disables the manifest.
func (c *Config) ManifestPath(dir string) string {
	if c.Manifest == "" || filepath.IsAbs(c.Manifest) {
		return c.Manifest
	}
	return filepath.Join(dir, c.Manifest)
}

func (c *Config) String() string {
	return fmt.Sprintf("source=%s blur=%d/%.2f divisor=%d corruption=%.2f/%d[%d,%d] motion=%.2f%v/%s quality=%d seed=%d",
		c.Source, c.Blur.KernelSize, c.Blur.Sigma, c.Downscale.Divisor,
		c.Corruption.PixelFraction, c.Corruption.BlockCount, c.Corruption.BlockMin, c.Corruption.BlockMax,
		c.Corruption.MotionProbability, c.Corruption.MotionKernelSizes, c.Corruption.MotionAxis,
		c.Encode.Quality, c.Seed)
}
