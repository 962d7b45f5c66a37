// Command ro-sample draws posterior samples of the Ro sky rate from HEALPix
// count maps and an exposure map, checkpointing every iteration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/reedessick/gpr-isotropy/internal/config"
	"github.com/reedessick/gpr-isotropy/internal/fsutil"
	"github.com/reedessick/gpr-isotropy/internal/mapio"
	"github.com/reedessick/gpr-isotropy/internal/monitoring"
	"github.com/reedessick/gpr-isotropy/internal/sampling"
	"github.com/reedessick/gpr-isotropy/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to session JSON config (required)")
	outputPath  = flag.String("output", "", "Checkpoint file to write; empty keeps samples in memory only")
	resumePath  = flag.String("resume", "", "Checkpoint file to resume from (its last sample seeds the walkers)")
	iterations  = flag.Int("n", 100, "Number of iterations to sample")
	seed        = flag.Uint64("seed", 0, "Override the config seed (0 keeps the config value)")
	verbose     = flag.Bool("verbose", false, "Log progress and draw a progress bar on stderr")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	ConfigPath string
	OutputPath string
	ResumePath string
	Iterations int
	Seed       uint64
	Verbose    bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("ro-sample", version.String())
		return
	}
	if *configPath == "" {
		log.Fatal("-config is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ConfigPath: *configPath,
		OutputPath: *outputPath,
		ResumePath: *resumePath,
		Iterations: *iterations,
		Seed:       *seed,
		Verbose:    *verbose,
	}
	if err := run(ctx, opts, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted; checkpoint holds every completed iteration")
			os.Exit(130)
		}
		log.Fatalf("ro-sample: %v", err)
	}
}

func run(ctx context.Context, opts options, stderr io.Writer) error {
	monitoring.SetVerbose(opts.Verbose)

	cfg, err := config.LoadSessionConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	monitoring.Debugf("reading %d count maps", len(cfg.Maps))
	maps, err := mapio.ReadAll(fsys, cfg.Maps)
	if err != nil {
		return fmt.Errorf("%w: %w", sampling.ErrResource, err)
	}
	monitoring.Debugf("reading exposure from %s", cfg.Exposure)
	exposure, err := mapio.Read(fsys, cfg.Exposure)
	if err != nil {
		return fmt.Errorf("%w: %w", sampling.ErrResource, err)
	}

	model, err := cfg.BuildRoModel()
	if err != nil {
		return fmt.Errorf("%w: %w", sampling.ErrConfig, err)
	}
	prior, err := cfg.BuildPrior()
	if err != nil {
		return fmt.Errorf("%w: %w", sampling.ErrConfig, err)
	}
	kernel, err := cfg.BuildKernel()
	if err != nil {
		return fmt.Errorf("%w: %w", sampling.ErrConfig, err)
	}

	s := opts.Seed
	if s == 0 {
		var ok bool
		if s, ok = cfg.GetSeed(); !ok {
			s = rand.Uint64()
			log.Printf("no seed configured, using %d", s)
		}
	}

	sampler, err := sampling.New(sampling.Config{
		Nside:    cfg.GetNside(),
		Maps:     maps,
		Exposure: exposure,
		Kernel:   kernel,
		Prior:    prior,
		Model:    model,
		NWalkers: cfg.GetNWalkers(),
		NWorkers: cfg.GetNThreads(),
		Seed:     s,
	})
	if err != nil {
		return err
	}
	if opts.Verbose {
		sampler.WithProgress(stderr)
	}

	sess := sampler.Session()
	log.Printf("session: nside=%d maps=%d model=%s ndim=%d walkers=%d workers=%d seed=%d",
		sess.Nside, sess.NMaps, sess.Model.Kind, sess.NDim, sess.NWalkers, sess.NWorkers, sess.Seed)

	if err := sampler.Initialize(ctx, opts.ResumePath); err != nil {
		return err
	}
	if opts.ResumePath != "" {
		log.Printf("resuming at iteration %d from %s", sampler.State().Iteration, opts.ResumePath)
	}

	if err := sampler.Sample(ctx, opts.Iterations, opts.OutputPath); err != nil {
		return err
	}
	if opts.OutputPath != "" {
		log.Printf("wrote %d iterations to %s", opts.Iterations, opts.OutputPath)
	}
	return nil
}
