package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"
	"offload-desktop/internal/worker"

	"go.uber.org/zap"
)

// Lister is the slice of the worker API the reconciliation poller needs.
type Lister interface {
	ListJobs(domain models.Domain) ([]models.Job, error)
}

// Feed is the slice of the event feed the observer subscribes through.
type Feed interface {
	Subscribe(domain models.Domain, channel worker.Channel) (worker.Subscription, error)
}

// EmitFunc publishes a snapshot to the frontend (runtime.EventsEmit in the
// app, a recorder under test).
type EmitFunc func(event string, payload interface{})

// Snapshot is the payload emitted to the frontend whenever a domain's store
// changes, pre-partitioned the way the views consume it.
type Snapshot struct {
	Domain  models.Domain `json:"domain"`
	Active  []models.Job  `json:"active"`
	History []models.Job  `json:"history"`
}

// Observer keeps one domain's store synchronized for the lifetime of an
// observing view. It holds exactly one subscription per event kind and runs
// the reconciliation poll loop; both are released by Stop. Push events keep
// latency low, the poll keeps the store correct when pushes are dropped.
type Observer struct {
	domain   models.Domain
	store    *Store
	lister   Lister
	feed     Feed
	interval time.Duration
	emit     EmitFunc

	subs    []worker.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewObserver wires an observer for one domain. interval is the
// reconciliation poll cadence (30s for the job queues by default).
func NewObserver(domain models.Domain, store *Store, lister Lister, feed Feed, interval time.Duration, emit EmitFunc) *Observer {
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Observer{
		domain:   domain,
		store:    store,
		lister:   lister,
		feed:     feed,
		interval: interval,
		emit:     emit,
	}
}

// Store exposes the observed store for read access.
func (o *Observer) Store() *Store {
	return o.store
}

// Start subscribes to both push channels and launches the poll loop. A
// failed subscription is logged, not fatal: the poller alone still converges
// the store within one interval.
func (o *Observer) Start() error {
	if o.started {
		return fmt.Errorf("observer for %s already started", o.domain)
	}
	o.started = true

	progressCh := o.subscribe(worker.ChannelProgress)
	jobCh := o.subscribe(worker.ChannelJobUpdated)

	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.run(progressCh, jobCh)

	logger.Log.Info("job observer started",
		zap.String("domain", string(o.domain)),
		zap.Duration("poll_interval", o.interval))
	return nil
}

// Stop ends the poll loop and closes every open subscription. Close errors
// are swallowed; a leaked subscription must never break teardown.
func (o *Observer) Stop() {
	if !o.started {
		return
	}
	o.started = false

	close(o.stopCh)
	<-o.doneCh

	for _, sub := range o.subs {
		if err := sub.Close(); err != nil {
			logger.Log.Warn("failed to close subscription",
				zap.String("domain", string(o.domain)),
				zap.Error(err))
		}
	}
	o.subs = nil

	logger.Log.Info("job observer stopped", zap.String("domain", string(o.domain)))
}

// Refresh fetches the authoritative job list and replaces the store
// wholesale. Used by the poll loop and by the controller for its immediate
// post-operation re-fetch.
func (o *Observer) Refresh() error {
	list, err := o.lister.ListJobs(o.domain)
	if err != nil {
		return err
	}
	o.store.ReplaceAll(list)
	o.emitSnapshot()
	return nil
}

func (o *Observer) subscribe(channel worker.Channel) <-chan worker.Envelope {
	sub, err := o.feed.Subscribe(o.domain, channel)
	if err != nil {
		logger.Log.Warn("subscription failed, relying on polling",
			zap.String("domain", string(o.domain)),
			zap.String("channel", string(channel)),
			zap.Error(err))
		return nil
	}
	o.subs = append(o.subs, sub)
	return sub.Events()
}

func (o *Observer) run(progressCh, jobCh <-chan worker.Envelope) {
	defer close(o.doneCh)

	// Prime the store before the first tick so the view is not empty for a
	// whole poll interval.
	if err := o.Refresh(); err != nil {
		logger.Log.Warn("initial job fetch failed",
			zap.String("domain", string(o.domain)),
			zap.Error(err))
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return

		case <-ticker.C:
			if err := o.Refresh(); err != nil {
				// Keep the last-known state; the next tick retries.
				logger.Log.Warn("reconciliation poll failed",
					zap.String("domain", string(o.domain)),
					zap.Error(err))
			}

		case env, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			o.handleProgress(env)

		case env, ok := <-jobCh:
			if !ok {
				jobCh = nil
				continue
			}
			o.handleJobUpdated(env)
		}
	}
}

func (o *Observer) handleProgress(env worker.Envelope) {
	var e models.ProgressEvent
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		logger.Log.Warn("malformed progress event",
			zap.String("domain", string(o.domain)),
			zap.Error(err))
		return
	}
	if o.store.ApplyProgress(e) {
		o.emitSnapshot()
	}
}

func (o *Observer) handleJobUpdated(env worker.Envelope) {
	var job models.Job
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		logger.Log.Warn("malformed job-updated event",
			zap.String("domain", string(o.domain)),
			zap.Error(err))
		return
	}
	o.store.ApplyJob(job)
	o.emitSnapshot()
}

func (o *Observer) emitSnapshot() {
	o.emit(fmt.Sprintf("jobs:%s", o.domain), Snapshot{
		Domain:  o.domain,
		Active:  o.store.Active(),
		History: o.store.Terminal(),
	})
}
