// Package engine runs a validation pass as a sequence of phases (fetch,
// validate, serve-rtr, report) rather than a continuous message pipe: a
// Phase lifecycle (Attach/Run/Stop driven by a PhaseBase carrying a
// logger, a koanf config tree, and a cancelable context) replaces a BGP
// message-pipe stage graph. There is no per-message pipe here, no
// directional filters, and no event bus to dispatch: a validation run
// has no direction and no continuous stream of events, only a handful of
// sequential steps.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Phase implements one step of a validation run. Runner executes phases
// strictly in sequence: fetch must finish before validate, which must
// finish before serve.
type Phase interface {
	// Attach checks configuration before the run starts.
	Attach() error
	// Run executes the phase and returns once its work is done. It must
	// respect PhaseBase.Ctx.
	Run() error
	// Stop requests early termination, e.g. on shutdown signal.
	Stop() error
}

// PhaseBase is embedded by every concrete Phase: one logger per phase, a
// config subtree, a cancelable context, and the phase's own flag set.
type PhaseBase struct {
	zerolog.Logger

	Ctx    context.Context
	Cancel context.CancelCauseFunc

	K     *koanf.Koanf
	Flags *pflag.FlagSet

	Name string
}

// Attach is the default Phase implementation: no-op.
func (p *PhaseBase) Attach() error { return nil }

// Stop is the default Phase implementation: no-op.
func (p *PhaseBase) Stop() error { return nil }

// NewPhaseFunc builds a Phase given its PhaseBase. It should register any
// phase-specific flags on base.Flags.
type NewPhaseFunc func(base *PhaseBase) Phase

// Runner sequences a named list of Phases. Unlike a concurrent
// stage-pipeline, a Runner's phases run one after another, never
// concurrently, since each phase's output (fetched objects, validated
// VRPs) is the next phase's input.
type Runner struct {
	zerolog.Logger

	Ctx    context.Context
	Cancel context.CancelCauseFunc

	K *koanf.Koanf

	phases []*PhaseBase
	impls  []Phase
}

// NewRunner builds a Runner with a fresh root context and console logger.
func NewRunner() *Runner {
	r := &Runner{}
	r.Ctx, r.Cancel = context.WithCancelCause(context.Background())
	r.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Timestamp().Logger()
	r.K = koanf.New(".")
	return r
}

// AddPhase appends a named phase, building its PhaseBase from the
// Runner's context/config and handing it to newfunc.
func (r *Runner) AddPhase(name string, newfunc NewPhaseFunc) *PhaseBase {
	base := &PhaseBase{
		Name:  name,
		K:     koanf.New("."),
		Flags: pflag.NewFlagSet(name, pflag.ContinueOnError),
	}
	base.Ctx, base.Cancel = context.WithCancelCause(r.Ctx)
	base.Logger = r.Logger.With().Str("phase", name).Logger()

	impl := newfunc(base)
	r.phases = append(r.phases, base)
	r.impls = append(r.impls, impl)
	return base
}

// Run attaches every phase, then runs each to completion in order,
// stopping at the first error.
func (r *Runner) Run() error {
	for i, impl := range r.impls {
		if err := impl.Attach(); err != nil {
			return fmt.Errorf("%s: attach: %w", r.phases[i].Name, err)
		}
	}

	for i, impl := range r.impls {
		base := r.phases[i]
		base.Info().Msg("phase starting")
		start := time.Now()
		if err := impl.Run(); err != nil {
			base.Cancel(err)
			return fmt.Errorf("%s: %w", base.Name, err)
		}
		base.Info().Dur("took", time.Since(start)).Msg("phase finished")
	}

	return nil
}

// StopAll requests every phase to stop, in reverse start order, mirroring
// a graceful shutdown sweep.
func (r *Runner) StopAll() {
	for i := len(r.impls) - 1; i >= 0; i-- {
		if err := r.impls[i].Stop(); err != nil {
			r.phases[i].Warn().Err(err).Msg("phase stop error")
		}
	}
}
