// Package sampling drives an ensemble sampler over the Ro field and keeps its
// output resumable.
//
// A Sampler validates one session's inputs, starts the walkers either from
// the data or from the last record of a checkpoint, and advances them in
// fixed-size batches. After every completed iteration the in-memory state is
// updated and, when a checkpoint path is given, exactly one record is
// appended to the file before the next iteration starts.
package sampling

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/reedessick/gpr-isotropy/internal/checkpoint"
	"github.com/reedessick/gpr-isotropy/internal/ensemble"
	"github.com/reedessick/gpr-isotropy/internal/healpix"
	"github.com/reedessick/gpr-isotropy/internal/monitoring"
	"github.com/reedessick/gpr-isotropy/internal/posterior"
	"github.com/reedessick/gpr-isotropy/internal/romodel"
	"github.com/reedessick/gpr-isotropy/internal/timeutil"
)

// Defaults applied by the config loader and the CLI.
const (
	DefaultNumWalkers = 50
	DefaultNumWorkers = 1
)

// initStream is the second PCG word for drawing the starting ensemble, kept
// apart from the engine's stream so both can share one seed.
const initStream = 0x2545f4914f6cdd1d

// Config is everything a session needs. It is copied by New.
type Config struct {
	Nside    int
	Maps     []healpix.Map
	Exposure healpix.Map
	Kernel   posterior.Kernel
	Prior    posterior.Prior
	Model    romodel.Model

	// NWalkers is raised to 2*ndim when smaller.
	NWalkers int
	// NWorkers bounds concurrent posterior evaluations. Zero means one.
	NWorkers int
	Seed     uint64

	// Engine defaults to ensemble.NewStretch.
	Engine     ensemble.Factory
	// Evaluators defaults to posterior.NewPoissonPair.
	Evaluators posterior.Factory
	// Clock stamps checkpoint metadata and times runs. Defaults to the wall clock.
	Clock      timeutil.Clock
}

// Sampler owns one sampling session.
type Sampler struct {
	session  SessionConfig
	maps     []healpix.Map
	exposure healpix.Map
	model    romodel.Model
	ro       posterior.Evaluator
	roEps    posterior.EpsEvaluator
	engine   ensemble.Engine
	clock    timeutil.Clock

	state       State
	initialized bool
	warnings    []string
	progress    io.Writer
}

// New validates cfg and builds the evaluators and engine. Every validation
// failure wraps ErrConfig.
func New(cfg Config) (*Sampler, error) {
	if err := healpix.ValidateNside(cfg.Nside); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	npix := healpix.NPix(cfg.Nside)

	for i, m := range cfg.Maps {
		if len(m) != npix {
			return nil, fmt.Errorf("%w: map %d has %d pixels, nside %d needs %d", ErrConfig, i, len(m), cfg.Nside, npix)
		}
	}
	if len(cfg.Exposure) != npix {
		return nil, fmt.Errorf("%w: exposure has %d pixels, nside %d needs %d", ErrConfig, len(cfg.Exposure), cfg.Nside, npix)
	}
	if cfg.Kernel == nil || cfg.Prior == nil || cfg.Model == nil {
		return nil, fmt.Errorf("%w: kernel, prior and ro model are required", ErrConfig)
	}
	if n := cfg.Kernel.Nside(); n != cfg.Nside {
		return nil, fmt.Errorf("%w: kernel nside %d disagrees with nside %d", ErrConfig, n, cfg.Nside)
	}
	if n := cfg.Prior.Nside(); n != cfg.Nside {
		return nil, fmt.Errorf("%w: prior nside %d disagrees with nside %d", ErrConfig, n, cfg.Nside)
	}
	if n := cfg.Model.Nside(); n != cfg.Nside {
		return nil, fmt.Errorf("%w: ro model nside %d disagrees with nside %d", ErrConfig, n, cfg.Nside)
	}
	ndim, err := cfg.Model.NDim()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if cfg.NWorkers < 0 {
		return nil, fmt.Errorf("%w: negative worker count %d", ErrConfig, cfg.NWorkers)
	}
	if cfg.NWorkers == 0 {
		cfg.NWorkers = DefaultNumWorkers
	}
	if cfg.Engine == nil {
		cfg.Engine = ensemble.NewStretch
	}
	if cfg.Evaluators == nil {
		cfg.Evaluators = posterior.NewPoissonPair
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	s := &Sampler{
		maps:     make([]healpix.Map, len(cfg.Maps)),
		exposure: cfg.Exposure.Clone(),
		model:    cfg.Model,
		clock:    cfg.Clock,
	}
	for i, m := range cfg.Maps {
		s.maps[i] = m.Clone()
	}

	if need := 2 * ndim; cfg.NWalkers < need {
		s.warnf("increasing the number of walkers from %d to 2*ndim=%d", cfg.NWalkers, need)
		cfg.NWalkers = need
	}

	s.ro, s.roEps, err = cfg.Evaluators(s.maps, s.exposure, cfg.Kernel, cfg.Prior)
	if err != nil {
		return nil, fmt.Errorf("%w: building posterior: %w", ErrConfig, err)
	}
	s.engine, err = cfg.Engine(ensemble.Config{
		NWalkers:  cfg.NWalkers,
		NDim:      ndim,
		Objective: s.logProb,
		NWorkers:  cfg.NWorkers,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: building engine: %w", ErrConfig, err)
	}

	s.session = SessionConfig{
		Nside:    cfg.Nside,
		NPix:     npix,
		NMaps:    len(cfg.Maps),
		NWalkers: cfg.NWalkers,
		NDim:     ndim,
		NWorkers: cfg.NWorkers,
		Seed:     cfg.Seed,
		Model:    cfg.Model.Descriptor(),
		Kernel:   cfg.Kernel.Descriptor(),
		Prior:    cfg.Prior.Descriptor(),
	}
	return s, nil
}

func (s *Sampler) warnf(format string, v ...interface{}) {
	monitoring.Warnf(format, v...)
	s.warnings = append(s.warnings, fmt.Sprintf(format, v...))
}

// WithProgress draws a progress bar on w during Sample. A nil w disables it.
func (s *Sampler) WithProgress(w io.Writer) *Sampler {
	s.progress = w
	return s
}

// Session returns the resolved session settings.
func (s *Sampler) Session() SessionConfig { return s.session }

// Warnings returns the warnings raised while building the sampler.
func (s *Sampler) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

// State returns a copy of the current state.
func (s *Sampler) State() State { return s.state.clone() }

// Initialized reports whether Initialize has succeeded.
func (s *Sampler) Initialized() bool { return s.initialized }

// logProb is the objective the engine samples: the Ro posterior of the
// field the model builds from params.
func (s *Sampler) logProb(params []float64) float64 {
	ro, err := s.model.Transform(params)
	if err != nil {
		return math.Inf(-1)
	}
	lp := s.ro.LogProb(ro)
	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}

// Initialize sets the starting state. With an empty path the walkers are
// drawn from the data at iteration 0; otherwise the last record of the
// checkpoint at path is restored exactly.
func (s *Sampler) Initialize(ctx context.Context, path string) error {
	var (
		st  State
		err error
	)
	if path == "" {
		monitoring.Debugf("initializing %d walkers from maps and exposure", s.session.NWalkers)
		st, err = s.fresh(ctx)
	} else {
		monitoring.Debugf("loading initial state from last sample in %s", path)
		st, err = s.resume(path)
	}
	if err != nil {
		return err
	}
	s.state = st
	s.initialized = true
	return nil
}

func (s *Sampler) fresh(ctx context.Context) (State, error) {
	src := rand.NewPCG(s.session.Seed, initStream)
	ens, err := s.model.Initialize(s.maps, s.exposure, s.session.NWalkers, src)
	if err != nil {
		return State{}, fmt.Errorf("%w: initializing walkers: %w", ErrConfig, err)
	}

	lp := make([]float64, len(ens))
	err = s.forEachWalker(ctx, len(ens), func(i int) error {
		lp[i] = s.logProb(ens[i])
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return State{Iteration: 0, Ensemble: ens, LogProb: lp}, nil
}

func (s *Sampler) resume(path string) (State, error) {
	store, err := checkpoint.Open(path)
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrResource, err)
	}
	defer store.Close()

	md, err := store.Metadata()
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrResource, err)
	}
	switch {
	case md.Nside != s.session.Nside:
		return State{}, fmt.Errorf("%w: checkpoint nside %d, session nside %d", ErrConfig, md.Nside, s.session.Nside)
	case md.NWalkers != s.session.NWalkers || md.NDim != s.session.NDim:
		return State{}, fmt.Errorf("%w: checkpoint holds %dx%d walkers, session needs %dx%d",
			ErrConfig, md.NWalkers, md.NDim, s.session.NWalkers, s.session.NDim)
	}
	stored, err := romodel.FromDescriptor(md.Model)
	if err != nil {
		return State{}, fmt.Errorf("%w: checkpoint ro model: %w", ErrResource, err)
	}
	if !stored.Descriptor().Equal(s.session.Model) {
		return State{}, fmt.Errorf("%w: checkpoint ro model %+v, session ro model %+v", ErrConfig, md.Model, s.session.Model)
	}

	last, err := store.Last()
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrResource, err)
	}
	ens := romodel.Ensemble(last.Positions)
	if w, d := ens.Shape(); w != s.session.NWalkers || d != s.session.NDim || len(last.LogProb) != w {
		return State{}, fmt.Errorf("%w: last record has %dx%d positions and %d log-probabilities",
			ErrResource, w, d, len(last.LogProb))
	}
	for i, row := range ens {
		if len(row) != s.session.NDim {
			return State{}, fmt.Errorf("%w: walker %d has %d dims", ErrResource, i, len(row))
		}
	}

	return State{
		Iteration:   last.Iteration + 1,
		Ensemble:    ens,
		LogProb:     last.LogProb,
		EngineState: last.EngineState,
	}, nil
}

// Sample advances the chain n iterations. With a non-empty path the
// checkpoint there is recreated and receives one record per iteration,
// indexed from the current iteration count. On error the state and the file
// both stop at the last completed iteration.
func (s *Sampler) Sample(ctx context.Context, n int, path string) (err error) {
	if !s.initialized {
		return ErrNotInitialized
	}
	if n < 0 {
		return fmt.Errorf("%w: negative iteration count %d", ErrConfig, n)
	}

	var store *checkpoint.Store
	if path != "" {
		monitoring.Debugf("checkpointing to %s", path)
		store, err = checkpoint.Create(path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrResource, err)
		}
		defer func() {
			if cerr := store.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("%w: closing checkpoint: %w", ErrResource, cerr)
			}
		}()
		if err := store.WriteMetadata(s.metadata()); err != nil {
			return fmt.Errorf("%w: %w", ErrResource, err)
		}
	}

	bar := newProgressBar(s.progress, n)
	defer bar.finish()
	began := s.clock.Now()

	start := ensemble.Start{
		Positions:   s.state.Ensemble,
		LogProb:     s.state.LogProb,
		EngineState: s.state.EngineState,
	}
	done := 0
	for step, err := range s.engine.Sample(ctx, start, n) {
		if err != nil {
			return fmt.Errorf("iteration %d: %w", s.state.Iteration, err)
		}
		if store != nil {
			rec, err := s.record(ctx, step)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", s.state.Iteration, err)
			}
			if err := store.Append(rec); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrResource, store.Path(), err)
			}
		}
		s.state = State{
			Iteration:   s.state.Iteration + 1,
			Ensemble:    step.Positions,
			LogProb:     step.LogProb,
			EngineState: step.EngineState,
		}
		done++
		bar.update(done)
	}
	monitoring.Debugf("sampled %d iterations in %s", done, s.clock.Since(began))
	return nil
}

func (s *Sampler) metadata() checkpoint.Metadata {
	return checkpoint.Metadata{
		Nside:     s.session.Nside,
		NWalkers:  s.session.NWalkers,
		NDim:      s.session.NDim,
		Model:     s.session.Model,
		Prior:     s.session.Prior,
		Kernel:    s.session.Kernel,
		CreatedAt: s.clock.Now(),
	}
}

// record builds the checkpoint row for step, including the Eps posterior
// implied by each walker's field.
func (s *Sampler) record(ctx context.Context, step ensemble.Step) (checkpoint.Record, error) {
	eps := make([]posterior.EpsSummary, len(step.Positions))
	err := s.forEachWalker(ctx, len(step.Positions), func(i int) error {
		ro, err := s.model.Transform(step.Positions[i])
		if err != nil {
			return fmt.Errorf("walker %d: %w", i, err)
		}
		post, err := s.roEps.EpsPosterior(ro)
		if err != nil {
			return fmt.Errorf("eps posterior for walker %d: %w", i, err)
		}
		eps[i] = post.Summary()
		return nil
	})
	if err != nil {
		return checkpoint.Record{}, err
	}
	return checkpoint.Record{
		Iteration:   s.state.Iteration,
		Positions:   step.Positions,
		LogProb:     step.LogProb,
		Eps:         eps,
		EngineState: step.EngineState,
	}, nil
}

// forEachWalker runs fn for every walker index with at most NWorkers in flight.
func (s *Sampler) forEachWalker(ctx context.Context, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.session.NWorkers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
