package lipsync

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/emotedriver/internal/bus"
)

func testConfig() Config {
	return Config{
		Envelope: EnvelopeConfig{
			MeanDecay:  800 * time.Millisecond,
			PeakDecay:  150 * time.Millisecond,
			UpdateRate: 30,
		},
		Mapper: Mapper{ActivationRatio: 0.3, Curve: 0.35, Oversaturation: 1.1},
	}
}

// frameRecorder collects frames and the completion reason from a session.
type frameRecorder struct {
	mu       sync.Mutex
	frames   []Frame
	reason   DoneReason
	done     chan struct{}
	doneOnce sync.Once
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{done: make(chan struct{})}
}

func (r *frameRecorder) attach(e *Engine) {
	e.OnFrame(func(f Frame) {
		r.mu.Lock()
		r.frames = append(r.frames, f)
		r.mu.Unlock()
	})
	e.OnDone(func(reason DoneReason) {
		r.mu.Lock()
		r.reason = reason
		r.mu.Unlock()
		r.doneOnce.Do(func() { close(r.done) })
	})
}

func (r *frameRecorder) wait(t *testing.T) ([]Frame, DoneReason) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...), r.reason
}

func constBlock(amplitude float64, n int) Block {
	b := make(Block, n)
	for i := range b {
		b[i] = amplitude
	}
	return b
}

func TestEngine_SilenceThenSpeech(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())
	rec := newFrameRecorder()
	rec.attach(engine)

	// queue everything up front so the engine never hits a frame timeout
	q := NewQueueSource(64)
	// 30 silent frames, then 10 frames at RMS 0.5, then silence again
	for i := 0; i < 30; i++ {
		require.NoError(t, q.Push(constBlock(0, 160)))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Push(constBlock(0.5, 160)))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(constBlock(0, 160)))
	}
	q.Finish()
	require.NoError(t, engine.Start(q))

	frames, reason := rec.wait(t)
	require.Len(t, frames, 45)
	assert.Equal(t, DoneFinished, reason)

	for i := 0; i < 30; i++ {
		assert.Zero(t, frames[i].Ratio, "silent frame %d", i)
	}
	// the ratio self-calibrates: near fully open within the loud burst
	var maxLoud float64
	for i := 30; i < 40; i++ {
		if frames[i].Ratio > maxLoud {
			maxLoud = frames[i].Ratio
		}
		assert.InDelta(t, 0.5, frames[i].Telemetry.RMS, 1e-9)
	}
	assert.Greater(t, maxLoud, 0.9)
	// back toward closed within ~5 frames of renewed silence
	for i := 40; i < 45; i++ {
		assert.Zero(t, frames[i].Ratio, "post-speech frame %d", i)
	}
}

func TestEngine_TelemetryMatchesRatioFrame(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())
	rec := newFrameRecorder()
	rec.attach(engine)

	q := NewQueueSource(8)
	require.NoError(t, q.Push(constBlock(0.4, 160)))
	q.Finish()
	require.NoError(t, engine.Start(q))

	frames, _ := rec.wait(t)
	require.Len(t, frames, 1)
	f := frames[0]
	assert.InDelta(t, 0.4, f.Telemetry.RMS, 1e-9)
	assert.Greater(t, f.Telemetry.Peak, f.Telemetry.Mean)
	assert.GreaterOrEqual(t, f.Telemetry.Threshold, f.Telemetry.Mean)
}

func TestEngine_TimeoutDecaysPeak(t *testing.T) {
	cfg := testConfig()
	cfg.Envelope.UpdateRate = 50 // 20ms period keeps the test quick
	engine := NewEngine(cfg, nil, zerolog.Nop())
	rec := newFrameRecorder()
	rec.attach(engine)

	q := NewQueueSource(8)
	require.NoError(t, q.Push(constBlock(0.5, 160)))
	require.NoError(t, engine.Start(q))

	// let several frame periods elapse with no audio
	time.Sleep(120 * time.Millisecond)
	q.Finish()

	frames, _ := rec.wait(t)
	require.GreaterOrEqual(t, len(frames), 3)

	loud := frames[0]
	assert.InDelta(t, 0.5, loud.Telemetry.RMS, 1e-9)

	prevPeak := loud.Telemetry.Peak
	for _, f := range frames[1:] {
		assert.Zero(t, f.Ratio, "silence frames report zero activation")
		assert.Zero(t, f.Telemetry.RMS)
		assert.Less(t, f.Telemetry.Peak, prevPeak, "peak keeps decaying during silence")
		assert.Equal(t, loud.Telemetry.Mean, f.Telemetry.Mean, "baseline untouched during silence")
		prevPeak = f.Telemetry.Peak
	}
}

func TestEngine_EmptyBlockIsSilence(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())
	rec := newFrameRecorder()
	rec.attach(engine)

	q := NewQueueSource(8)
	require.NoError(t, q.Push(Block{}))
	q.Finish()
	require.NoError(t, engine.Start(q))

	frames, reason := rec.wait(t)
	require.Len(t, frames, 1)
	assert.Zero(t, frames[0].Ratio)
	assert.Equal(t, DoneFinished, reason, "bad blocks are never fatal")
}

func TestEngine_StopReportsStopped(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())
	rec := newFrameRecorder()
	rec.attach(engine)

	q := NewQueueSource(8)
	require.NoError(t, engine.Start(q))
	require.NoError(t, q.Push(constBlock(0.3, 160)))

	engine.Stop()

	_, reason := rec.wait(t)
	assert.Equal(t, DoneStopped, reason)
	assert.Equal(t, StateIdle, engine.State())
}

func TestEngine_StartRequiresSource(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())
	assert.ErrorIs(t, engine.Start(nil), ErrSourceRequired)
}

func TestEngine_RestartJoinsPreviousSession(t *testing.T) {
	engine := NewEngine(testConfig(), nil, zerolog.Nop())

	first := newFrameRecorder()
	first.attach(engine)
	q1 := NewQueueSource(8)
	require.NoError(t, engine.Start(q1))

	// second start must fully stop the first session before running
	q2 := NewQueueSource(8)
	require.NoError(t, engine.Start(q2))

	_, reason := first.wait(t)
	assert.Equal(t, DoneStopped, reason)
	assert.Equal(t, StateRunning, engine.State())

	engine.Stop()
	assert.Equal(t, StateIdle, engine.State())
}

func TestBlockRMS(t *testing.T) {
	assert.Zero(t, blockRMS(nil))
	assert.Zero(t, blockRMS(Block{}))
	assert.InDelta(t, 0.5, blockRMS(constBlock(0.5, 64)), 1e-12)
	assert.InDelta(t, 0.5, blockRMS(constBlock(-0.5, 64)), 1e-12)
}

func TestEngine_TerminalEventDeliveredBeforeDone(t *testing.T) {
	eventBus := bus.NewEventBus()
	var delivered atomic.Bool
	eventBus.Subscribe(bus.EventTypeLipSyncFinished, func(bus.Event) {
		delivered.Store(true)
	})

	engine := NewEngine(testConfig(), eventBus, zerolog.Nop())
	sawEvent := make(chan bool, 1)
	engine.OnDone(func(DoneReason) { sawEvent <- delivered.Load() })

	q := NewQueueSource(4)
	q.Finish()
	require.NoError(t, engine.Start(q))

	select {
	case ok := <-sawEvent:
		assert.True(t, ok, "finished event handlers run before the done callback")
	case <-time.After(2 * time.Second):
		t.Fatal("session never completed")
	}
}
