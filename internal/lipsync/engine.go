package lipsync

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/emotedriver/internal/bus"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// DoneReason distinguishes natural end-of-stream from an explicit stop, so
// callers ease the mouth shut only on natural end-of-speech.
type DoneReason string

const (
	DoneFinished DoneReason = "finished"
	DoneStopped  DoneReason = "stopped"
)

// Telemetry is the per-frame debug payload for visualization consumers.
type Telemetry struct {
	RMS       float64 `json:"rms"`
	Mean      float64 `json:"mean"`
	Peak      float64 `json:"peak"`
	Threshold float64 `json:"threshold"`
}

// Frame couples the mouth-openness ratio with its telemetry so both are
// observed together or not at all.
type Frame struct {
	Ratio     float64   `json:"ratio"`
	Telemetry Telemetry `json:"telemetry"`
}

// Config bundles the session tuning.
type Config struct {
	Envelope EnvelopeConfig
	Mapper   Mapper
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Envelope: DefaultEnvelopeConfig(),
		Mapper:   DefaultMapper(),
	}
}

// Engine drives the envelope tracker and mapper from a FrameSource on a
// fixed cadence. At most one session is active per engine; starting while
// running fully joins the previous session first.
type Engine struct {
	cfg      Config
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	source  FrameSource
	done    chan struct{}
	stopped bool // explicit Stop requested for the active session

	cbMu    sync.RWMutex
	onFrame func(Frame)
	onDone  func(DoneReason)
}

// NewEngine creates an idle engine. eventBus may be nil.
func NewEngine(cfg Config, eventBus *bus.EventBus, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "lipsync").Logger(),
		state:    StateIdle,
	}
}

// OnFrame registers the per-frame callback. It is invoked synchronously from
// the engine loop, preserving frame order.
func (e *Engine) OnFrame(fn func(Frame)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onFrame = fn
}

// OnDone registers the session-completion callback.
func (e *Engine) OnDone(fn func(DoneReason)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onDone = fn
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins a session against the given source. The previous session, if
// any, is fully stopped first so no two producer/engine pairs drive the same
// rig control. The envelope is freshly zeroed per session.
func (e *Engine) Start(source FrameSource) error {
	if source == nil {
		return ErrSourceRequired
	}

	e.Stop()

	e.mu.Lock()
	e.state = StateRunning
	e.source = source
	e.stopped = false
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	rate := e.cfg.Envelope.UpdateRate
	if rate < 1 {
		rate = 1
	}
	period := time.Second / time.Duration(rate)

	e.logger.Info().
		Int("update_rate", rate).
		Dur("mean_decay", e.cfg.Envelope.MeanDecay).
		Dur("peak_decay", e.cfg.Envelope.PeakDecay).
		Float64("activation_ratio", e.cfg.Mapper.ActivationRatio).
		Msg("Lip sync session started")
	e.publish(bus.EventTypeLipSyncStarted, nil)

	go e.run(source, NewTracker(e.cfg.Envelope), period, done)
	return nil
}

// Stop drains the source, pushes the sentinel, and joins the loop. No-op
// when idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	e.stopped = true
	source := e.source
	done := e.done
	e.mu.Unlock()

	source.Stop()
	<-done
}

func (e *Engine) run(source FrameSource, tracker *Tracker, period time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(period)

		select {
		case block := <-source.Blocks():
			if block == nil {
				e.finish()
				return
			}
			rms := blockRMS(block)
			if len(block) == 0 {
				e.logger.Warn().Msg("Empty audio block, treating as silence")
			}
			env := tracker.Update(rms)
			raw := e.cfg.Mapper.Activation(rms, env)
			e.emit(Frame{
				Ratio: e.cfg.Mapper.Reshape(raw),
				Telemetry: Telemetry{
					RMS:       rms,
					Mean:      env.Mean,
					Peak:      env.Peak,
					Threshold: e.cfg.Mapper.Threshold(env),
				},
			})

		case <-timer.C:
			// no frame within the expected interval: peak keeps decaying,
			// baseline untouched, zero activation reported
			env := tracker.DecaySilence()
			e.emit(Frame{
				Ratio: 0,
				Telemetry: Telemetry{
					RMS:       0,
					Mean:      env.Mean,
					Peak:      env.Peak,
					Threshold: env.Mean,
				},
			})
		}
	}
}

func (e *Engine) finish() {
	e.mu.Lock()
	reason := DoneFinished
	if e.stopped {
		reason = DoneStopped
	}
	e.state = StateIdle
	e.source = nil
	e.mu.Unlock()

	e.logger.Info().Str("reason", string(reason)).Msg("Lip sync session ended")
	// terminal events publish synchronously so shutdown-ordered handlers
	// have run before Stop returns
	if reason == DoneStopped {
		e.publishSync(bus.EventTypeLipSyncStopped, nil)
	} else {
		e.publishSync(bus.EventTypeLipSyncFinished, nil)
	}

	e.cbMu.RLock()
	cb := e.onDone
	e.cbMu.RUnlock()
	if cb != nil {
		cb(reason)
	}
}

func (e *Engine) emit(f Frame) {
	e.cbMu.RLock()
	cb := e.onFrame
	e.cbMu.RUnlock()
	if cb != nil {
		cb(f)
	}
}

func (e *Engine) publish(t bus.EventType, data map[string]any) {
	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}

func (e *Engine) publishSync(t bus.EventType, data map[string]any) {
	if e.eventBus != nil {
		e.eventBus.PublishSync(bus.Event{Type: t, Data: data})
	}
}

// blockRMS is the per-frame energy measure: sqrt(mean(block^2)). An empty
// block counts as silence.
func blockRMS(b Block) float64 {
	if len(b) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(b)))
}
