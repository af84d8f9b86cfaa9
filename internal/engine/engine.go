// File: backend/internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/resetflow/backend/internal/campaigns"
	"github.com/resetflow/backend/internal/provider"
)

// Sender is the dispatch collaborator: one password-reset email for one user
// in one project. The engine treats it as an opaque, potentially slow,
// potentially rate-limited remote call.
type Sender interface {
	SendPasswordReset(ctx context.Context, projectID, userID, template string) error
}

// ConnectivityChecker verifies the dispatch target is reachable at all. Used
// to tell a systemic outage apart from a streak of per-user failures.
type ConnectivityChecker interface {
	Check(ctx context.Context) error
}

// RotationPolicy selects how work is distributed across a campaign's
// projects.
type RotationPolicy string

const (
	// RotationConcurrent runs every project's batches in parallel, each with
	// its own worker pool. Fairness is trivial: no project can starve another.
	RotationConcurrent RotationPolicy = "concurrent"
	// RotationRoundRobin completes one batch per project before returning to
	// the first, bounding total concurrency to a single worker pool.
	RotationRoundRobin RotationPolicy = "round_robin"
)

// Config tunes the execution engine.
type Config struct {
	// DispatchInterval is the minimum spacing between dispatches per project.
	DispatchInterval time.Duration
	// BatchPause is imposed after each batch completes.
	BatchPause time.Duration
	// GlobalRatePerSecond optionally caps dispatches across all projects;
	// zero disables the global limiter.
	GlobalRatePerSecond float64
	// Rotation selects the project rotation policy.
	Rotation RotationPolicy
	// FailureProbeThreshold is the number of consecutive transport-level
	// dispatch failures that triggers a connectivity probe.
	FailureProbeThreshold int
	// Lightning tunes the fire-and-forget path.
	Lightning LightningConfig
}

// LightningConfig tunes the opt-in maximum-throughput path.
type LightningConfig struct {
	// SubBatchSize caps lightning sub-batches regardless of the campaign's
	// configured batch size.
	SubBatchSize int
	// CallTimeout bounds each individual dispatch call.
	CallTimeout time.Duration
	// MaxInFlight caps concurrent in-flight sub-batches as a resource safety
	// valve.
	MaxInFlight int64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DispatchInterval:      150 * time.Millisecond,
		BatchPause:            200 * time.Millisecond,
		Rotation:              RotationConcurrent,
		FailureProbeThreshold: 10,
		Lightning: LightningConfig{
			SubBatchSize: 100,
			CallTimeout:  1 * time.Second,
			MaxInFlight:  1000,
		},
	}
}

// UnrecoverableRunError aborts a whole campaign run; the campaign transitions
// to failed instead of accumulating further per-unit failures.
type UnrecoverableRunError struct {
	Reason string
}

func (e *UnrecoverableRunError) Error() string {
	return "campaign run aborted: " + e.Reason
}

// Engine owns campaign execution. It is constructed with an explicit store
// reference and sender; nothing in the engine is process-global, so multiple
// engines (e.g. under test) do not interfere.
type Engine struct {
	store           campaigns.CampaignStore
	sender          Sender
	lightningSender Sender
	probe           ConnectivityChecker // nil disables probing; failure streaks then abort directly
	cfg             Config

	mu              sync.Mutex
	runs            map[string]*campaignRun
	lightningActive bool
	lightningID     string
}

// campaignRun is the runtime control block for one active campaign.
type campaignRun struct {
	cancel     context.CancelFunc
	pause      *pauseGate
	done       chan struct{}
	failStreak atomic.Int32 // consecutive transport-level dispatch failures
	batchSeq   atomic.Int32 // global batch number for progress reporting
}

// New creates an engine. lightningSender may equal sender; probe may be nil.
func New(store campaigns.CampaignStore, sender, lightningSender Sender, probe ConnectivityChecker, cfg Config) *Engine {
	if cfg.Lightning.SubBatchSize <= 0 {
		cfg.Lightning.SubBatchSize = 100
	}
	if cfg.Lightning.CallTimeout <= 0 {
		cfg.Lightning.CallTimeout = time.Second
	}
	if cfg.Lightning.MaxInFlight <= 0 {
		cfg.Lightning.MaxInFlight = 1000
	}
	if cfg.FailureProbeThreshold <= 0 {
		cfg.FailureProbeThreshold = 10
	}
	if lightningSender == nil {
		lightningSender = sender
	}
	return &Engine{
		store:           store,
		sender:          sender,
		lightningSender: lightningSender,
		probe:           probe,
		cfg:             cfg,
		runs:            make(map[string]*campaignRun),
	}
}

// Start transitions a pending campaign to running and launches its run in
// the background. Fails with *InvalidStateError if the campaign is not
// pending.
func (e *Engine) Start(campaignID string) error {
	c, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return err
	}
	totalBatches := TotalBatchCount(c.SelectedUsers, c.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	run := &campaignRun{
		cancel: cancel,
		pause:  newPauseGate(),
		done:   make(chan struct{}),
	}
	// Register before the store flips to running, so a Pause arriving the
	// instant the status changes always finds the run and engages its gate.
	e.mu.Lock()
	if _, exists := e.runs[campaignID]; exists {
		e.mu.Unlock()
		cancel()
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: campaigns.StatusRunning, Operation: "start"}
	}
	e.runs[campaignID] = run
	e.mu.Unlock()

	if err := e.store.MarkStarted(campaignID, campaigns.ModeStandard, totalBatches); err != nil {
		cancel()
		e.unregister(campaignID, run)
		return err
	}
	c.Mode = campaigns.ModeStandard
	c.TotalBatches = totalBatches

	log.Printf("INFO: Engine: Starting campaign %s: %d projects, %d users, %d batches, %d workers, rotation=%s",
		campaignID, len(c.ProjectIDs), c.TotalUsers(), totalBatches, c.WorkerCount, e.rotation())
	go e.run(ctx, c, run)
	return nil
}

// Pause signals all workers of a running campaign to suspend after their
// in-flight unit completes. Queued batches are kept; the in-flight batch does
// not fully drain before pause takes effect. A pause that lands after the
// final unit was dispatched leaves nothing to hold back and the run still
// reaches completed.
func (e *Engine) Pause(campaignID string) error {
	if err := e.store.MarkPaused(campaignID); err != nil {
		return err
	}
	if run := e.getRun(campaignID); run != nil {
		run.pause.Pause()
	}
	log.Printf("INFO: Engine: Campaign %s paused", campaignID)
	return nil
}

// Resume re-signals workers to continue draining from exactly where they
// stopped; no unit is skipped or re-sent.
func (e *Engine) Resume(campaignID string) error {
	if err := e.store.MarkResumed(campaignID); err != nil {
		return err
	}
	if run := e.getRun(campaignID); run != nil {
		run.pause.Resume()
	}
	log.Printf("INFO: Engine: Campaign %s resumed", campaignID)
	return nil
}

// Delete removes a campaign. A running campaign is rejected; a paused one has
// its run cancelled first (workers observe the cancellation and exit, and any
// late outcome against the deleted campaign is discarded).
func (e *Engine) Delete(campaignID string) error {
	if err := e.store.DeleteCampaign(campaignID); err != nil {
		return err
	}
	if run := e.getRun(campaignID); run != nil {
		run.cancel()
		run.pause.Resume() // unblock workers parked at the pause gate
	}
	log.Printf("INFO: Engine: Campaign %s deleted", campaignID)
	return nil
}

// Shutdown cancels every active run and waits for workers to finish their
// in-flight units, up to the given grace period.
func (e *Engine) Shutdown(grace time.Duration) {
	e.mu.Lock()
	active := make([]*campaignRun, 0, len(e.runs))
	for _, run := range e.runs {
		run.cancel()
		run.pause.Resume()
		active = append(active, run)
	}
	e.mu.Unlock()

	deadline := time.After(grace)
	for _, run := range active {
		select {
		case <-run.done:
		case <-deadline:
			log.Printf("WARN: Engine: Shutdown grace period elapsed with runs still draining")
			return
		}
	}
}

func (e *Engine) getRun(campaignID string) *campaignRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[campaignID]
}

// unregister removes the run only if it still owns the map entry, so an
// aborted start can never evict a run registered by a concurrent caller.
func (e *Engine) unregister(campaignID string, run *campaignRun) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runs[campaignID] == run {
		delete(e.runs, campaignID)
	}
}

func (e *Engine) rotation() RotationPolicy {
	if e.cfg.Rotation == RotationRoundRobin {
		return RotationRoundRobin
	}
	return RotationConcurrent
}

// run drives a standard-path campaign to a terminal state.
func (e *Engine) run(ctx context.Context, c *campaigns.Campaign, run *campaignRun) {
	defer close(run.done)
	defer e.unregister(c.CampaignID, run)
	defer run.cancel()

	gate := NewRateGate(e.cfg.DispatchInterval, e.cfg.GlobalRatePerSecond)

	var runErr error
	switch e.rotation() {
	case RotationRoundRobin:
		runErr = e.runRoundRobin(ctx, c, run, gate)
	default:
		runErr = e.runConcurrent(ctx, c, run, gate)
	}

	if ctx.Err() != nil {
		// Cancelled (deletion or shutdown): the campaign is gone or will be
		// left in its paused/running state intentionally; no terminal write.
		log.Printf("INFO: Engine: Campaign %s run cancelled", c.CampaignID)
		return
	}
	if runErr != nil {
		log.Printf("ERROR: Engine: Campaign %s aborted: %v", c.CampaignID, runErr)
		if err := e.store.MarkFailed(c.CampaignID, runErr.Error()); err != nil {
			log.Printf("WARN: Engine: Could not mark campaign %s failed: %v", c.CampaignID, err)
		}
		return
	}
	if err := e.store.MarkCompleted(c.CampaignID); err != nil {
		log.Printf("WARN: Engine: Could not mark campaign %s completed: %v", c.CampaignID, err)
		return
	}
	log.Printf("INFO: Engine: Campaign %s completed", c.CampaignID)
}

// processBatch drains one batch with the campaign's worker pool. Units are
// fed in selection order; each worker awaits the pause gate and the rate gate
// before dispatching, then records the outcome. Returns an
// *UnrecoverableRunError when a failure streak plus a failed connectivity
// probe indicate a systemic outage.
func (e *Engine) processBatch(ctx context.Context, c *campaigns.Campaign, run *campaignRun, gate *RateGate, batch Batch) error {
	batchCtx, batchCancel := context.WithCancel(ctx)
	defer batchCancel()

	var abortMu sync.Mutex
	var abortErr error
	setAbort := func(err error) {
		abortMu.Lock()
		if abortErr == nil {
			abortErr = err
			batchCancel()
		}
		abortMu.Unlock()
	}

	units := make(chan string)
	go func() {
		defer close(units)
		for _, uid := range batch.UserIDs {
			select {
			case units <- uid:
			case <-batchCtx.Done():
				return
			}
		}
	}()

	workers := c.WorkerCount
	if workers > len(batch.UserIDs) {
		workers = len(batch.UserIDs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for uid := range units {
				// A paused worker finishes its in-flight unit, then parks
				// here until resume or cancellation.
				if err := run.pause.Wait(batchCtx); err != nil {
					return
				}
				if err := gate.Wait(batchCtx, batch.ProjectID); err != nil {
					return
				}
				e.dispatchUnit(batchCtx, c, run, batch.ProjectID, uid, setAbort)
			}
		}()
	}
	wg.Wait()

	abortMu.Lock()
	defer abortMu.Unlock()
	if abortErr != nil {
		return abortErr
	}
	return ctx.Err()
}

// dispatchUnit performs one dispatch call and records its outcome exactly
// once. Per-unit failures are recovered locally: counted, logged, execution
// continues. Zero retries; password-reset dispatch failures are most often
// permanent per-user conditions.
func (e *Engine) dispatchUnit(ctx context.Context, c *campaigns.Campaign, run *campaignRun, projectID, userID string, setAbort func(error)) {
	err := e.sender.SendPasswordReset(ctx, projectID, userID, c.Template)
	if ctx.Err() != nil && err != nil {
		// Cancelled mid-call: not a real outcome, discard.
		return
	}
	if err == nil {
		run.failStreak.Store(0)
		if recErr := e.store.RecordOutcome(c.CampaignID, projectID, true, ""); recErr != nil {
			log.Printf("WARN: Engine: Could not record outcome for campaign %s: %v", c.CampaignID, recErr)
		}
		return
	}

	if recErr := e.store.RecordOutcome(c.CampaignID, projectID, false, err.Error()); recErr != nil {
		log.Printf("WARN: Engine: Could not record outcome for campaign %s: %v", c.CampaignID, recErr)
	}
	log.Printf("INFO: Engine: Dispatch failed for user %s in project %s: %v", userID, projectID, err)

	if !provider.IsTransportError(err) {
		// Provider rejected this specific user; connectivity is fine.
		run.failStreak.Store(0)
		return
	}
	streak := run.failStreak.Add(1)
	if int(streak) < e.cfg.FailureProbeThreshold {
		return
	}
	if e.probe == nil {
		setAbort(&UnrecoverableRunError{Reason: fmt.Sprintf("%d consecutive transport failures reaching the dispatch target", streak)})
		return
	}
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer probeCancel()
	if probeErr := e.probe.Check(probeCtx); probeErr != nil {
		setAbort(&UnrecoverableRunError{Reason: fmt.Sprintf("connectivity to dispatch target lost after %d consecutive transport failures: %v", streak, probeErr)})
		return
	}
	// Target still reachable; the streak was provider-side turbulence.
	run.failStreak.Store(0)
}

// pauseGate blocks workers while a campaign is paused. When running, the
// current channel is closed and Wait falls straight through; Pause swaps in
// an open channel.
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPauseGate() *pauseGate {
	g := &pauseGate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

func (g *pauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
		// Already paused.
	}
}

func (g *pauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		// Already running.
	default:
		close(g.ch)
	}
}

func (g *pauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
