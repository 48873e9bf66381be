package main

import (
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"phash-degrade/internal/algorithms"
	"phash-degrade/internal/config"
	"phash-degrade/internal/core"
	imgio "phash-degrade/internal/io"
	"phash-degrade/internal/manifest"
	"phash-degrade/internal/pipeline"
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"output-dir":         "output_dir",
	"seed":               "seed",
	"parallel":           "parallel",
	"manifest":           "manifest",
	"debug":              "debug",
	"blur-kernel":        "blur.kernel_size",
	"blur-sigma":         "blur.sigma",
	"divisor":            "downscale.divisor",
	"pixel-fraction":     "corruption.pixel_fraction",
	"block-count":        "corruption.block_count",
	"block-min":          "corruption.block_min",
	"block-max":          "corruption.block_max",
	"motion-probability": "corruption.motion_probability",
	"motion-kernels":     "corruption.motion_kernel_sizes",
	"motion-axis":        "corruption.motion_axis",
	"quality":            "encode.quality",
}

func newRunCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "run [source]",
		Short: "Write the blurred, resized and broken variants next to the source",
		Long: `Loads the source image once and writes three variants:

  <name>_blurred.png   Gaussian blur
  <name>_resized.png   downscale by an integer divisor
  <name>_broken.jpg    salt-and-pepper pixels, random blocks, optional
                       motion blur, saved as a low-quality JPEG

A variant that fails does not stop the others. The source may also come
from the config file or DEGRADE_SOURCE.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("source", args[0])
			}
			return runDegrade(cmd, v, configFile)
		},
	}

	defaults := viper.New()
	config.SetDefaults(defaults)
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default ./degrade.toml or <user config dir>/degrade/degrade.toml)")
	flags.StringP("output-dir", "o", "", "output directory (default: the source's directory)")
	flags.Int64("seed", 0, "seed for the corruption stage (default: time based, reported)")
	flags.Bool("parallel", false, "produce variants concurrently")
	flags.String("manifest", "", "append a JSON lines run manifest to this file, relative to the output directory")
	flags.Bool("debug", false, "enable debug logging")
	flags.Int("blur-kernel", defaults.GetInt("blur.kernel_size"), "Gaussian kernel size (positive, odd)")
	flags.Float64("blur-sigma", defaults.GetFloat64("blur.sigma"), "Gaussian sigma, 0 derives it from the kernel size")
	flags.Int("divisor", defaults.GetInt("downscale.divisor"), "downscale divisor")
	flags.Float64("pixel-fraction", defaults.GetFloat64("corruption.pixel_fraction"), "salt-and-pepper draws as a fraction of the pixel count")
	flags.Int("block-count", defaults.GetInt("corruption.block_count"), "number of random blocks")
	flags.Int("block-min", defaults.GetInt("corruption.block_min"), "minimum block side")
	flags.Int("block-max", defaults.GetInt("corruption.block_max"), "maximum block side")
	flags.Float64("motion-probability", defaults.GetFloat64("corruption.motion_probability"), "probability of applying the motion blur")
	flags.IntSlice("motion-kernels", algorithms.DefaultMotionKernelSizes(), "motion kernel sizes to choose from (odd)")
	flags.String("motion-axis", defaults.GetString("corruption.motion_axis"), "motion direction: vertical or horizontal")
	flags.Int("quality", defaults.GetInt("encode.quality"), fmt.Sprintf("JPEG quality of the broken variant [%d-%d]", imgio.MinQuality, imgio.MaxQuality))

	for name, key := range flagKeys {
		// Only fails for a nil flag.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	return cmd
}

func runDegrade(cmd *cobra.Command, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	logger := initLogger(cmd.ErrOrStderr(), cfg.Debug)
	if cfg.File != "" {
		logger.WithField("config", cfg.File).Debug("Using config file")
	}
	if !cfg.SeedSet {
		logger.WithField("seed", cfg.Seed).Info("No seed configured, using a time based seed")
	}
	logger.WithField("config", cfg.String()).Debug("Resolved configuration")

	rng := rand.New(rand.NewSource(cfg.Seed))
	blur, downscale, corruption, err := cfg.Stages(rng)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Source:    cfg.Source,
		OutputDir: cfg.OutputDir,
		Seed:      cfg.Seed,
		Parallel:  cfg.Parallel,
		Variants:  pipeline.DefaultVariants(blur, downscale, corruption, cfg.Encode.Quality),
	}, logger)

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(cfg.Source)
	}
	if path := cfg.ManifestPath(outDir); path != "" {
		m := manifest.New(path)
		defer m.Close()
		p.SetRecorder(m)
		logger.WithField("manifest", m.Path()).Debug("Recording run manifest")
	}

	report, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), report)

	if failed := report.Failed(); len(failed) > 0 {
		return core.NewError(core.GetCode(failed[0].Err), "%d of %d variants failed", len(failed), len(report.Results))
	}
	return nil
}

func printSummary(out io.Writer, report *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tSTATUS\tDIMENSIONS\tBYTES\tFILE / ERROR")
	for _, res := range report.Results {
		if res.Produced() {
			fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\t%s\n",
				res.Variant, res.Status, res.Width, res.Height, humanize.Bytes(uint64(res.Bytes)), res.Path)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t-\t-\t%v\n", res.Variant, res.Status, res.Err)
	}
	w.Flush()

	fmt.Fprintf(out, "seed %d, %d/%d produced in %s\n",
		report.Seed, report.ProducedCount(), len(report.Results),
		report.Finished.Sub(report.Started).Round(time.Millisecond))
}
