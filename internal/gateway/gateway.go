// Package gateway wires adapters together. It owns no platform logic: it
// takes events from one adapter and hands their messages to another through
// the delivery registry, one lane per conversation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/wechatgram/internal/delivery"
	"github.com/user/wechatgram/internal/types"
)

// ErrNoRoute is returned by Dispatch for events whose source has no route.
var ErrNoRoute = errors.New("no route for source")

// Recorder persists delivery failures. *state.Journal implements it.
type Recorder interface {
	Append(rec *types.DeliveryFailure) error
}

// Gateway routes inbound events to their target adapter.
type Gateway struct {
	registry *delivery.Registry
	recorder Recorder
	notifier types.Notifier
	Queue    *Queue

	mu     sync.RWMutex
	routes map[string]string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway delivering through registry with the given
// concurrency limit for simultaneous deliveries. recorder may be nil.
func New(registry *delivery.Registry, recorder Recorder, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		registry: registry,
		recorder: recorder,
		Queue:    NewQueue(concurrency),
		routes:   make(map[string]string),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Route sends message events emitted by source to target.
func (g *Gateway) Route(source, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes[source] = target
}

// SetNotifier sets where delivery failures are reported.
func (g *Gateway) SetNotifier(n types.Notifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifier = n
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// Handle is the types.EventHandler given to every adapter.
func (g *Gateway) Handle(ctx context.Context, event *types.Event) {
	if event.IsLifecycle() {
		g.lifecycle(event)
		return
	}
	if err := g.Dispatch(event); err != nil {
		slog.Warn("event not dispatched", "event_id", string(event.ID), "source", event.Source, "type", string(event.Type), "error", err)
	}
}

func (g *Gateway) lifecycle(event *types.Event) {
	switch event.Type {
	case types.EventLoggedIn:
		slog.Info("logged in", "source", event.Source)
	case types.EventLaunch:
		slog.Info("adapter launched", "source", event.Source)
	default:
		slog.Debug("lifecycle event", "source", event.Source, "type", string(event.Type))
	}
}

// Dispatch enqueues the event's message for its source's target adapter.
func (g *Gateway) Dispatch(event *types.Event) error {
	if event.Message == nil {
		return fmt.Errorf("event %s has no message", event.ID)
	}
	g.mu.RLock()
	target, ok := g.routes[event.Source]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrNoRoute, event.Source)
	}
	return g.Queue.Enqueue(NewJob(target, event))
}

func (g *Gateway) process(job *Job) error {
	job.start()
	err := g.registry.Deliver(job.Ctx, job.Key, job.Event.Message)
	job.finish(err)
	if err != nil {
		g.fail(job, err)
	}
	return err
}

// fail records the failure and tells the operator. Neither step may abort
// the lane.
func (g *Gateway) fail(job *Job, err error) {
	msg := job.Event.Message
	if g.recorder != nil {
		rec := &types.DeliveryFailure{
			ID:      job.ID,
			EventID: job.Event.ID,
			Source:  job.Event.Source,
			Target:  job.Target,
			Kind:    msg.Kind,
			Peer:    msg.Peer,
			Error:   err.Error(),
			At:      time.Now(),
		}
		if rerr := g.recorder.Append(rec); rerr != nil {
			slog.Error("record delivery failure", "delivery_id", string(job.ID), "error", rerr)
		}
	}

	g.mu.RLock()
	n := g.notifier
	g.mu.RUnlock()
	if n == nil {
		return
	}
	text := fmt.Sprintf("Failed to deliver %s to %s: %v", msg.Kind, job.Target, err)
	if nerr := n.Notify(job.Ctx, text); nerr != nil {
		slog.Error("notify delivery failure", "delivery_id", string(job.ID), "error", nerr)
	}
}
