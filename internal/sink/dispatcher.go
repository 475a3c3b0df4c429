// Package sink fans a finished generation out to best-effort side effects.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/ghola/internal/models"
)

const DefaultTimeout = 10 * time.Second

// Sink receives generation records. A failing sink never affects the caller's response.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec models.GenerationLog) error
}

type Failure struct {
	Sink string
	Err  error
}

type Report struct {
	Delivered []string
	Failures  []Failure
}

func (r Report) OK() bool {
	return len(r.Failures) == 0
}

type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Dispatcher{
		sinks:   active,
		timeout: timeout,
		log:     log,
	}
}

// Names lists the configured sinks.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch delivers rec to every sink concurrently and waits for all of them.
// Cancelling ctx does not abort deliveries; each one is bounded by the dispatcher timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.GenerationLog) Report {
	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	base := context.WithoutCancel(ctx)

	for _, s := range d.sinks {
		s := s
		g.Go(func() error {
			sinkCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			err := deliver(sinkCtx, s, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{Sink: s.Name(), Err: err})
				return nil
			}
			report.Delivered = append(report.Delivered, s.Name())
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range report.Failures {
		d.log.Warn("sink delivery failed", "sink", f.Sink, "generation_id", rec.ID, "err", f.Err)
	}
	return report
}

// Go runs Dispatch in the background. Call Wait before exiting to drain pending deliveries.
func (d *Dispatcher) Go(ctx context.Context, rec models.GenerationLog) {
	if len(d.sinks) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(ctx, rec)
	}()
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func deliver(ctx context.Context, s Sink, rec models.GenerationLog) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Deliver(ctx, rec)
}
