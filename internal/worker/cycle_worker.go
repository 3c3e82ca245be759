// Package worker runs the polling publish cycle: it discovers pending
// request objects, drives each through resource and bundle publication,
// and commits the terminal state back to object storage.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/URBREATH/geoserver-publisher/internal/domain"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
	"github.com/URBREATH/geoserver-publisher/internal/storage"
	"github.com/URBREATH/geoserver-publisher/internal/telemetry"
)

const defaultPollInterval = 30 * time.Second

// ResourcePublisher publishes one resource to the map server.
type ResourcePublisher interface {
	Publish(ctx context.Context, spec domain.ResourceSpec) (*domain.PublishedResource, error)
}

// BundlePublisher publishes one request's catalog bundle.
type BundlePublisher interface {
	Publish(ctx context.Context, topic, group, date string, resources []domain.PublishedResource) error
}

// processedEnvelope is the success object written back to storage: the
// original envelope shape holding only the resources that succeeded.
type processedEnvelope struct {
	Analysis string                `json:"analysis"`
	Data     []domain.ResourceSpec `json:"data"`
}

// CycleWorker polls the object store for pending publish requests on a
// fixed interval. One cycle fully completes before the next begins; a
// process restart simply re-scans storage state and relies on the
// idempotency of the downstream publication steps.
type CycleWorker struct {
	store     storage.ObjectStore
	resources ResourcePublisher
	bundles   BundlePublisher
	metrics   *telemetry.Metrics
	log       logger.Logger

	pollInterval time.Duration
	now          func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex

	stats cycleStats
}

type cycleStats struct {
	mu                 sync.Mutex
	cycles             int64
	requestsByState    map[string]int64
	resourcesPublished int64
	resourcesFailed    int64
	lastCycle          time.Time
}

// New creates a cycle worker.
func New(store storage.ObjectStore, resources ResourcePublisher, bundles BundlePublisher,
	metrics *telemetry.Metrics, pollInterval time.Duration, log logger.Logger,
) *CycleWorker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &CycleWorker{
		store:        store,
		resources:    resources,
		bundles:      bundles,
		metrics:      metrics,
		log:          log,
		pollInterval: pollInterval,
		now:          time.Now,
		stopChan:     make(chan struct{}),
		stats:        cycleStats{requestsByState: make(map[string]int64)},
	}
}

// Start begins the polling loop.
func (w *CycleWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.log.Info("cycle worker started",
		logger.Duration("poll_interval", w.pollInterval))
}

// Stop gracefully stops the worker, letting an in-flight cycle finish.
func (w *CycleWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("cycle worker stopped")
}

// IsRunning reports whether the worker has been started.
func (w *CycleWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *CycleWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Scan immediately on start
	w.runCycleSafe(ctx)

	for {
		select {
		case <-ticker.C:
			w.runCycleSafe(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycleSafe isolates the poll cadence from anything a cycle can throw.
func (w *CycleWorker) runCycleSafe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("publish cycle panicked", logger.Any("panic", r))
		}
	}()
	w.RunCycle(ctx)
}

// RunCycle executes one full publish cycle. Exported so tests and the
// stats endpoint can drive cycles without the ticker.
func (w *CycleWorker) RunCycle(ctx context.Context) {
	start := w.now()
	w.log.Debug("starting scan cycle")

	keys, err := w.store.ListPending(ctx)
	if err != nil {
		w.log.Error("failed to list pending requests", logger.Error(err))
		return
	}
	if len(keys) > 0 {
		w.log.Info("found pending requests", logger.Int("count", len(keys)))
	}

	for _, key := range keys {
		w.processRequest(ctx, key)
	}

	elapsed := w.now().Sub(start)
	w.metrics.CyclesTotal.Inc()
	w.metrics.CycleDuration.Observe(elapsed.Seconds())

	w.stats.mu.Lock()
	w.stats.cycles++
	w.stats.lastCycle = w.now()
	w.stats.mu.Unlock()
}

// processRequest handles one pending object. Failures here are contained:
// a bad request never stops the cycle.
func (w *CycleWorker) processRequest(ctx context.Context, key string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("request processing panicked",
				logger.String("key", key),
				logger.Any("panic", r))
		}
	}()

	raw, err := w.store.Get(ctx, key)
	if err != nil {
		// Transient read failure; the object stays pending for next cycle.
		w.log.Error("failed to read request", logger.String("key", key), logger.Error(err))
		return
	}

	outcome := w.handleRequest(ctx, key, raw)
	w.commit(ctx, key, outcome)
	w.record(outcome)
}

// handleRequest turns raw request bytes into a tagged outcome without
// touching storage, so the decision logic is testable in isolation.
func (w *CycleWorker) handleRequest(ctx context.Context, key string, raw []byte) domain.RequestOutcome {
	req, err := domain.ParseRequest(key, raw, w.now())
	if err != nil {
		w.log.Warn("malformed request",
			logger.String("key", key),
			logger.Error(err))
		return domain.RequestOutcome{State: domain.StateCorrupted}
	}

	if len(req.Resources) == 0 {
		// Left pending on purpose: an empty read may be transient, and
		// corrupting it would hide the request from operators.
		w.log.Warn("request carries no resources, leaving pending",
			logger.String("key", key))
		return domain.RequestOutcome{State: domain.StateSkipped, Topic: req.Topic}
	}

	outcome := domain.RequestOutcome{Topic: req.Topic}
	var toCatalog []domain.PublishedResource

	for _, spec := range req.Resources {
		published, pubErr := w.resources.Publish(ctx, spec)
		if pubErr != nil {
			w.log.Warn("resource publication failed",
				logger.String("key", key),
				logger.String("store", spec.StoreName),
				logger.Error(pubErr))
			outcome.Failed = append(outcome.Failed, domain.FailedResource{
				ResourceSpec: spec,
				ErrorLog:     pubErr.Error(),
			})
			continue
		}

		outcome.Succeeded = append(outcome.Succeeded, spec)
		if spec.WriteOnCatalogue {
			toCatalog = append(toCatalog, *published)
		}
	}

	if len(toCatalog) > 0 {
		// Catalog linkage is best-effort: a bundle failure never demotes
		// resources already published to the map server.
		if err := w.bundles.Publish(ctx, req.Topic, req.Group, req.OccurredOn, toCatalog); err != nil {
			w.log.Error("bundle publication failed",
				logger.String("key", key),
				logger.String("topic", req.Topic),
				logger.Error(err))
			w.metrics.BundlesTotal.WithLabelValues("error").Inc()
		} else {
			w.metrics.BundlesTotal.WithLabelValues("ok").Inc()
		}
	}

	if len(outcome.Failed) > 0 {
		outcome.State = domain.StatePartial
	} else {
		outcome.State = domain.StateDone
	}
	return outcome
}

// commit applies the storage side effects for an outcome. The original
// pending object is deleted only after every output object is written, so
// a crash in between leaves both input and output visible and the next
// cycle re-processes idempotently.
func (w *CycleWorker) commit(ctx context.Context, key string, outcome domain.RequestOutcome) {
	switch outcome.State {
	case domain.StateCorrupted:
		if err := w.store.Rename(ctx, key, storage.WithSuffix(key, storage.CorruptedSuffix)); err != nil {
			w.log.Error("failed to quarantine corrupted request",
				logger.String("key", key), logger.Error(err))
		}
		return

	case domain.StateSkipped:
		return
	}

	if len(outcome.Succeeded) > 0 {
		processed := processedEnvelope{Analysis: outcome.Topic, Data: outcome.Succeeded}
		if err := w.store.PutJSON(ctx, storage.WithSuffix(key, storage.ProcessedSuffix), processed); err != nil {
			w.log.Error("failed to write processed object",
				logger.String("key", key), logger.Error(err))
			return
		}
	}

	if len(outcome.Failed) > 0 {
		if err := w.store.PutJSON(ctx, storage.WithSuffix(key, storage.FailuresSuffix), outcome.Failed); err != nil {
			w.log.Error("failed to write failures object",
				logger.String("key", key), logger.Error(err))
			return
		}
	}

	if err := w.store.Delete(ctx, key); err != nil {
		w.log.Error("failed to delete pending request",
			logger.String("key", key), logger.Error(err))
		return
	}

	w.log.Info("request committed",
		logger.String("key", key),
		logger.String("state", outcome.State.String()),
		logger.Int("succeeded", len(outcome.Succeeded)),
		logger.Int("failed", len(outcome.Failed)))
}

func (w *CycleWorker) record(outcome domain.RequestOutcome) {
	w.metrics.RequestsTotal.WithLabelValues(outcome.State.String()).Inc()
	w.metrics.ResourcesPublished.Add(float64(len(outcome.Succeeded)))
	w.metrics.ResourcesFailed.Add(float64(len(outcome.Failed)))

	w.stats.mu.Lock()
	defer w.stats.mu.Unlock()
	w.stats.requestsByState[outcome.State.String()]++
	w.stats.resourcesPublished += int64(len(outcome.Succeeded))
	w.stats.resourcesFailed += int64(len(outcome.Failed))
}

// GetStats returns a snapshot of worker statistics for the stats endpoint.
func (w *CycleWorker) GetStats() map[string]any {
	w.stats.mu.Lock()
	defer w.stats.mu.Unlock()

	byState := make(map[string]int64, len(w.stats.requestsByState))
	for k, v := range w.stats.requestsByState {
		byState[k] = v
	}

	lastCycle := ""
	if !w.stats.lastCycle.IsZero() {
		lastCycle = w.stats.lastCycle.Format(time.RFC3339)
	}

	return map[string]any{
		"cycles":              w.stats.cycles,
		"requests_by_state":   byState,
		"resources_published": w.stats.resourcesPublished,
		"resources_failed":    w.stats.resourcesFailed,
		"last_cycle":          lastCycle,
		"poll_interval":       w.pollInterval.String(),
		"running":             w.IsRunning(),
	}
}
