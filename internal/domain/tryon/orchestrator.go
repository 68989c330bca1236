package tryon

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tryon-server-go/internal/domain/image"
	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
	"tryon-server-go/internal/platform/storage"
)

// startTicks are the synthetic progress values emitted while the images are
// normalized locally. Preprocessing has no native progress signal, so the
// stream would otherwise be silent until the first poll.
var startTicks = [...]int{10, 20, 30}

const genericFailureMessage = "Try-on processing failed"

// Orchestrator drives one try-on request end to end: normalize both images,
// submit the job, poll until a terminal state, persist the output, and
// relay everything as a live event stream.
type Orchestrator struct {
	client     *Client
	normalizer *image.Normalizer
	results    *storage.ResultStore
	cfg        config.InferenceConfig
	logger     *logging.Logger
}

func NewOrchestrator(client *Client, normalizer *image.Normalizer, results *storage.ResultStore, cfg config.InferenceConfig, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		client:     client,
		normalizer: normalizer,
		results:    results,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run starts the pipeline and returns its event stream. The channel carries
// zero or more progress events followed by exactly one terminal event, then
// closes. Cancelling ctx stops the run; a cancelled stream closes without a
// terminal event because nobody is left to read one.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 8)

	go func() {
		defer close(out)

		emitter := &eventEmitter{ctx: ctx, out: out}
		defer func() {
			if r := recover(); r != nil {
				o.logger.ErrorTag("TryOn", "pipeline panic: %v", r)
				emitter.terminal(failedEvent(genericFailureMessage))
			}
		}()

		o.run(ctx, req, emitter)
	}()

	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, em *eventEmitter) {
	subject, garment, ok := o.normalizeWithTicks(ctx, req, em)
	if !ok {
		return
	}

	jobID, err := o.client.Submit(ctx, subject.DataURI(), garment.DataURI())
	if err != nil {
		o.logger.ErrorTag("TryOn", "submit failed: clothing=%s err=%v", req.ClothingID, err)
		em.terminal(failedEvent(errors.UserMessage(err)))
		return
	}
	o.logger.InfoTag("TryOn", "job submitted: id=%s clothing=%s", jobID, req.ClothingID)

	o.poll(ctx, jobID, em)
}

// normalizeWithTicks preprocesses both images concurrently while pacing the
// synthetic start ticks. Returns ok=false when the run is already over
// (normalization failed or the caller went away).
func (o *Orchestrator) normalizeWithTicks(ctx context.Context, req Request, em *eventEmitter) (subject, garment *image.Normalized, ok bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subject, err = o.normalizer.Normalize(req.CustomerImage, image.RoleSubject)
		return err
	})
	g.Go(func() error {
		var err error
		garment, err = o.normalizer.Normalize(req.ClothingImage, image.RoleGarment)
		return err
	})

	for i, tick := range startTicks {
		if !em.emit(progressEvent(tick)) {
			_ = g.Wait()
			return nil, nil, false
		}
		if i < len(startTicks)-1 && !sleep(gctx, o.cfg.StartTick) {
			break
		}
	}

	if err := g.Wait(); err != nil {
		o.logger.ErrorTag("TryOn", "normalize failed: clothing=%s err=%v", req.ClothingID, err)
		em.terminal(failedEvent(errors.UserMessage(err)))
		return nil, nil, false
	}
	return subject, garment, true
}

func (o *Orchestrator) poll(ctx context.Context, jobID string, em *eventEmitter) {
	for attempt := 1; attempt <= o.cfg.MaxPolls; attempt++ {
		snap, err := o.client.PollOnce(ctx, jobID)
		switch {
		case err == nil:
		case errors.IsKind(err, errors.KindAuth), errors.IsKind(err, errors.KindRateLimit):
			o.logger.ErrorTag("TryOn", "poll rejected: id=%s attempt=%d err=%v", jobID, attempt, err)
			em.terminal(failedEvent(errors.UserMessage(err)))
			return
		default:
			if ctx.Err() != nil {
				return
			}
			o.logger.WarnTag("TryOn", "poll failed: id=%s attempt=%d err=%v", jobID, attempt, err)
			if !sleep(ctx, o.cfg.PollInterval) {
				return
			}
			continue
		}

		o.logger.DebugTag("TryOn", "poll: id=%s attempt=%d status=%s progress=%d",
			jobID, attempt, snap.RawStatus, snap.Progress)

		if !em.emit(statusEvent(snap.Progress, statusLabel(snap.Status))) {
			return
		}

		if snap.Status.Terminal() {
			em.terminal(o.finish(ctx, jobID, snap))
			return
		}

		if !sleep(ctx, o.cfg.PollInterval) {
			return
		}
	}

	o.logger.ErrorTag("TryOn", "poll budget exhausted: id=%s attempts=%d", jobID, o.cfg.MaxPolls)
	em.terminal(failedEvent("Task timed out. Please try again."))
}

// finish turns a terminal snapshot into the stream's terminal event.
func (o *Orchestrator) finish(ctx context.Context, jobID string, snap Snapshot) Event {
	if snap.Status == StatusCompleted {
		return o.complete(ctx, jobID, snap)
	}

	msg := snap.ErrorMessage
	if msg == "" {
		msg = genericFailureMessage
	}
	o.logger.ErrorTag("TryOn", "job failed: id=%s msg=%s", jobID, msg)
	return failedEvent(msg)
}

func (o *Orchestrator) complete(ctx context.Context, jobID string, snap Snapshot) Event {
	if len(snap.OutputURLs) == 0 {
		o.logger.ErrorTag("TryOn", "completed without output: id=%s", jobID)
		return failedEvent("Job completed but returned no output image")
	}

	data, err := o.client.FetchOutput(ctx, snap.OutputURLs[0])
	if err != nil {
		o.logger.ErrorTag("TryOn", "result download failed: id=%s err=%v", jobID, err)
		return failedEvent(errors.UserMessage(err))
	}

	path, err := o.results.SaveResult(data)
	if err != nil {
		o.logger.ErrorTag("TryOn", "result save failed: id=%s err=%v", jobID, err)
		return failedEvent(errors.UserMessage(err))
	}

	o.logger.InfoTag("TryOn", "job completed: id=%s result=%s", jobID, path)
	return completeEvent(path)
}

func statusLabel(s JobStatus) string {
	switch s {
	case StatusQueued:
		return "In Queue"
	case StatusCompleted:
		return "Finalizing"
	default:
		return "Processing"
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// eventEmitter serializes sends onto the stream and enforces the
// exactly-one-terminal-event contract. Progress never moves backward even
// when the remote API reports a lower percent than an earlier tick.
type eventEmitter struct {
	ctx  context.Context
	out  chan<- Event
	last int
	done bool
}

func (e *eventEmitter) emit(ev Event) bool {
	if e.done {
		return false
	}
	if ev.Progress != nil {
		if *ev.Progress < e.last {
			p := e.last
			ev.Progress = &p
		} else {
			e.last = *ev.Progress
		}
	}
	select {
	case e.out <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *eventEmitter) terminal(ev Event) {
	if e.done {
		return
	}
	ev.Terminal = true
	select {
	case e.out <- ev:
	case <-e.ctx.Done():
	}
	e.done = true
}
