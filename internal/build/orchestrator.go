package build

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
)

// State is the build state machine's current state.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSucceeded
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the build state, readable at any time
// by the serve layer and pushed to viewers on every completed build.
type Snapshot struct {
	State      State
	Generation uint64
	// Failure carries the last failure; nil while idle, building after a
	// success, or succeeded.
	Failure    *errors.BuildError
	FinishedAt time.Time
	Duration   time.Duration
}

// CompletionFunc is called after every build attempt concludes, with the
// snapshot of the completed generation. Callbacks run outside the
// orchestrator's lock.
type CompletionFunc func(Snapshot)

// Runner executes one build attempt. *Executor is the production
// implementation.
type Runner interface {
	Run(ctx context.Context) Result
}

// Orchestrator serializes builds: at most one executor invocation is
// active at any time. Requests that arrive mid-build set a single owed
// flag rather than queueing, so any burst of requests during a build
// yields exactly one follow-up build.
type Orchestrator struct {
	executor Runner
	log      logging.Logger
	recorder *metrics.Recorder

	mu         sync.Mutex
	state      State
	generation uint64
	owed       bool
	failure    *errors.BuildError
	finishedAt time.Time
	duration   time.Duration
	callbacks  []CompletionFunc
	ctx        context.Context
	started    bool
	inflight   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator in the Idle state.
func NewOrchestrator(executor Runner, recorder *metrics.Recorder, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		executor: executor,
		recorder: recorder,
		log:      log.WithComponent("orchestrator"),
	}
}

// OnComplete registers a completion callback. Must be called before Start.
func (o *Orchestrator) OnComplete(fn CompletionFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, fn)
}

// Start arms the orchestrator. The context bounds every build it spawns:
// cancelling it kills any in-flight builder process best-effort and
// discards its result.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
	o.started = true
}

// Request submits a rebuild request. If no build is running one starts
// immediately; otherwise exactly one follow-up build is owed regardless of
// how many requests arrive before the current build completes.
func (o *Orchestrator) Request() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return
	}

	if o.state == StateBuilding {
		o.owed = true
		if o.recorder != nil {
			o.recorder.RebuildCoalesced()
		}
		return
	}

	o.startBuildLocked()
}

// Snapshot returns the current build state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Generation returns the current build generation.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Wait blocks until no build is in flight. Intended for tests and for the
// one-shot build path.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// snapshotLocked must be called with o.mu held.
func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:      o.state,
		Generation: o.generation,
		Failure:    o.failure,
		FinishedAt: o.finishedAt,
		Duration:   o.duration,
	}
}

// startBuildLocked transitions into Building(gen+1) and launches the
// executor on its own goroutine. Must be called with o.mu held.
func (o *Orchestrator) startBuildLocked() {
	o.generation++
	o.state = StateBuilding
	gen := o.generation

	o.inflight.Add(1)
	go o.runBuild(o.ctx, gen)
}

// runBuild executes one build and applies the completion transition. The
// subprocess runs without the lock held; only the state transition takes
// it.
func (o *Orchestrator) runBuild(ctx context.Context, gen uint64) {
	defer o.inflight.Done()

	o.log.Info(ctx, "build started", "generation", gen)
	result := o.executor.Run(ctx)

	if ctx.Err() != nil {
		// Shutdown while building: the result is stale and nobody is
		// left to observe it.
		return
	}

	o.mu.Lock()
	if result.OK() {
		o.state = StateSucceeded
		o.failure = nil
	} else {
		o.state = StateFailed
		result.Failure.Generation = gen
		o.failure = result.Failure
	}
	o.finishedAt = time.Now()
	o.duration = result.Duration
	snapshot := o.snapshotLocked()

	owed := o.owed
	o.owed = false
	if owed {
		o.startBuildLocked()
	}
	callbacks := o.callbacks
	o.mu.Unlock()

	if o.recorder != nil {
		o.recorder.BuildFinished(snapshot.State.String(), result.Duration, gen)
	}

	if result.OK() {
		o.log.Info(ctx, "build succeeded", "generation", gen, "duration", result.Duration)
	} else {
		o.log.Error(ctx, result.Failure, "build failed", "generation", gen, "duration", result.Duration)
	}
	if owed {
		o.log.Info(ctx, "rebuild owed, starting follow-up build", "generation", gen+1)
	}

	for _, fn := range callbacks {
		fn(snapshot)
	}
}
