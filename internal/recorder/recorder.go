// Package recorder owns the capture session lifecycle: it wires the
// input tap, focus and clipboard observers through the normalizer into
// the fan-out bus, drives the append sink, and exposes the drain/stop
// surface the CLI and library callers use.
package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ehrlich-b/mimic/internal/ax"
	"github.com/ehrlich-b/mimic/internal/bus"
	"github.com/ehrlich-b/mimic/internal/clip"
	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
	"github.com/ehrlich-b/mimic/internal/focus"
	"github.com/ehrlich-b/mimic/internal/normalize"
	"github.com/ehrlich-b/mimic/internal/perm"
	"github.com/ehrlich-b/mimic/internal/tap"
)

var (
	// ErrPermissionDenied means accessibility or input monitoring is
	// not granted; the recorder refuses to start.
	ErrPermissionDenied = errors.New("accessibility or input-monitoring permission not granted")
	// ErrAlreadyRunning means Start was called twice.
	ErrAlreadyRunning = errors.New("recorder already running")
	// ErrNotRunning means Stop was called before Start.
	ErrNotRunning = errors.New("recorder not running")
)

// Workflow is the in-memory session: metadata plus the ordered events
// drained so far. It is mutated only by Drain and Stop and frozen
// after Stop.
type Workflow struct {
	ID             string
	Name           string
	StartedAt      time.Time
	CaptureContext bool
	Events         []event.Event
}

// Stats summarizes a finished session.
type Stats struct {
	Events   uint64 // events published to the stream
	Dropped  uint64 // tap callback messages lost to a full channel
	Lost     uint64 // events the drain subscription was too slow for
	Duration time.Duration
}

// Options configures a session.
type Options struct {
	Name           string
	CaptureContext bool
	// Sink receives the encoded log, one event per line. It is the
	// authoritative record: a slow sink backpressures the pipeline
	// rather than losing events.
	Sink io.Writer
	// BusCapacity overrides the sink channel depth (default 4096).
	BusCapacity int
}

type state int

const (
	stateUnstarted state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Seams the tests replace with fakes; production wiring is in New.
type inputTap interface {
	Start(ctx context.Context) error
	Stop()
	Messages() <-chan tap.Message
	Dropped() uint64
}

type focusObserver interface {
	Run(ctx context.Context)
	Events() <-chan event.Event
}

type clipObserver interface {
	Run(ctx context.Context)
	Events() <-chan event.Event
	NoteChord(op string)
}

// Recorder is both the session factory and the handle returned to the
// caller.
type Recorder struct {
	opts Options
	b    *bus.Bus

	mu     sync.Mutex
	st     state
	clk    *clock.Clock
	tp     inputTap
	cancel context.CancelFunc
	norm   *normalize.Normalizer
	own    *bus.Subscription

	events   atomic.Uint64
	sinkErr  atomic.Pointer[error]
	sinkDone chan struct{}

	stopOnce  sync.Once
	stopStats Stats
	stopErr   error

	checkPerm func() perm.Report
	newTap    func(clk *clock.Clock) inputTap
	newFocus  func(clk *clock.Clock) (focusObserver, error)
	newClip   func(clk *clock.Clock) (clipObserver, error)
	newProbe  func() *ax.Probe
}

// New prepares a recorder. The bus exists from this point on, so
// Stream may be called before Start.
func New(opts Options) *Recorder {
	return &Recorder{
		opts:      opts,
		b:         bus.New(opts.BusCapacity),
		sinkDone:  make(chan struct{}),
		checkPerm: perm.Check,
		newTap: func(clk *clock.Clock) inputTap {
			return tap.New(clk, 1024)
		},
		newFocus: func(clk *clock.Clock) (focusObserver, error) {
			return focus.New(clk, focus.DefaultInterval)
		},
		newClip: func(clk *clock.Clock) (clipObserver, error) {
			return clip.New(clk, clip.DefaultInterval)
		},
		newProbe: ax.New,
	}
}

// Start probes capabilities, installs the tap on its run-loop thread,
// spawns the observers, and returns the empty Workflow.
func (r *Recorder) Start() (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st != stateUnstarted {
		return nil, ErrAlreadyRunning
	}

	if report := r.checkPerm(); !report.Granted() {
		return nil, fmt.Errorf("%w (accessibility=%v, input monitoring=%v)",
			ErrPermissionDenied, report.Accessibility, report.InputMonitoring)
	}

	clk := clock.New()
	ctx, cancel := context.WithCancel(context.Background())

	tp := r.newTap(clk)
	if err := tp.Start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("install input tap: %w", err)
	}
	fo, err := r.newFocus(clk)
	if err != nil {
		tp.Stop()
		cancel()
		return nil, fmt.Errorf("start focus observer: %w", err)
	}
	co, err := r.newClip(clk)
	if err != nil {
		tp.Stop()
		cancel()
		return nil, fmt.Errorf("start clipboard observer: %w", err)
	}

	var probe *ax.Probe
	if r.opts.CaptureContext {
		probe = r.newProbe()
	}

	r.norm = normalize.New(normalize.Options{
		Taps:      tp.Messages(),
		Focus:     fo.Events(),
		Clips:     co.Events(),
		Probe:     probe,
		NoteChord: co.NoteChord,
		Out:       r.b,
	})
	r.own = r.b.Subscribe(r.opts.BusCapacity)
	r.clk = clk
	r.tp = tp
	r.cancel = cancel
	r.st = stateRunning

	go fo.Run(ctx)
	go co.Run(ctx)
	go r.norm.Run()
	go r.runSink()

	w := &Workflow{
		ID:             uuid.New().String(),
		Name:           r.opts.Name,
		StartedAt:      clk.Epoch(),
		CaptureContext: probe != nil,
	}
	log.Info().Str("session", r.opts.Name).Str("id", w.ID).
		Bool("context", w.CaptureContext).Msg("recording started")
	return w, nil
}

// Stream subscribes a streaming consumer. Works before or after Start;
// after Stop the subscription is already ended.
func (r *Recorder) Stream() *bus.Subscription {
	return r.b.Subscribe(0)
}

// Drain moves every currently buffered event into the workflow without
// blocking.
func (r *Recorder) Drain(w *Workflow) {
	r.mu.Lock()
	own := r.own
	r.mu.Unlock()
	if own == nil {
		return
	}
	for {
		select {
		case e, ok := <-own.Events():
			if !ok {
				return
			}
			w.Events = append(w.Events, e)
		default:
			return
		}
	}
}

// Stop tears the session down: the tap is uninstalled, the text buffer
// flushed, the sink flushed and closed, and the remaining events
// drained into w. Idempotent; later calls return the first result.
func (r *Recorder) Stop(w *Workflow) (Stats, error) {
	r.mu.Lock()
	if r.st == stateUnstarted {
		r.mu.Unlock()
		return Stats{}, ErrNotRunning
	}
	r.st = stateStopping
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		// Uninstall the tap first: its channel closing starts the
		// normalizer's wind-down, and cancel ends the pollers.
		r.tp.Stop()
		r.cancel()
		<-r.norm.Done()
		r.b.Close()
		<-r.sinkDone

		r.Drain(w)

		r.stopStats = Stats{
			Events:   r.events.Load(),
			Dropped:  r.tp.Dropped(),
			Lost:     r.own.Lost(),
			Duration: time.Since(r.clk.Epoch()),
		}
		if p := r.sinkErr.Load(); p != nil {
			r.stopErr = *p
		}

		r.mu.Lock()
		r.st = stateStopped
		r.mu.Unlock()

		log.Info().Uint64("events", r.stopStats.Events).
			Uint64("dropped", r.stopStats.Dropped).
			Dur("duration", r.stopStats.Duration).Msg("recording stopped")
	})
	return r.stopStats, r.stopErr
}

// runSink drains the authoritative stream to the writer. A write
// failure is fatal to the recording: producers are cancelled and the
// error surfaces from Stop, while the remaining stream is consumed so
// the pipeline can wind down.
func (r *Recorder) runSink() {
	defer close(r.sinkDone)
	bw := bufio.NewWriter(r.opts.Sink)
	for e := range r.b.Sink() {
		r.events.Add(1)
		if r.sinkErr.Load() != nil {
			continue
		}
		line, err := event.Encode(e)
		if err != nil {
			log.Warn().Err(err).Msg("event not encodable, skipped")
			continue
		}
		if _, err := bw.Write(line); err != nil {
			r.failSink(err)
			continue
		}
		if err := bw.WriteByte('\n'); err != nil {
			r.failSink(err)
		}
	}
	if r.sinkErr.Load() == nil {
		if err := bw.Flush(); err != nil {
			r.failSink(err)
		}
	}
}

func (r *Recorder) failSink(err error) {
	wrapped := fmt.Errorf("append sink: %w", err)
	r.sinkErr.CompareAndSwap(nil, &wrapped)
	log.Error().Err(err).Msg("sink write failed, stopping recording")
	// Transition toward stopping; Stop completes the teardown.
	r.tp.Stop()
	r.cancel()
}
