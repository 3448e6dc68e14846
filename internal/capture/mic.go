// Package capture feeds live microphone audio into a lip-sync queue source.
package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/normanking/emotedriver/internal/lipsync"
)

// Config selects the capture format. Blocks of SampleRate/UpdateRate mono
// samples are pushed per engine frame.
type Config struct {
	SampleRate int
	UpdateRate int
}

// DefaultConfig captures 16 kHz mono at the stock 30 Hz frame rate.
func DefaultConfig() Config {
	return Config{SampleRate: 16000, UpdateRate: 30}
}

// Mic owns the capture device and the producer side of a QueueSource. The
// engine consumes the other side. Stop finishes the queue so the engine
// terminates deterministically.
type Mic struct {
	cfg       Config
	queue     *lipsync.QueueSource
	logger    zerolog.Logger
	blockSize int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending lipsync.Block
	dropped int
}

// NewMic initializes the audio backend. Device errors surface here, before
// any session starts.
func NewMic(cfg Config, queue *lipsync.QueueSource, logger zerolog.Logger) (*Mic, error) {
	if cfg.UpdateRate < 1 {
		cfg.UpdateRate = 1
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	return &Mic{
		cfg:       cfg,
		queue:     queue,
		logger:    logger.With().Str("component", "mic").Logger(),
		blockSize: captureBlockSize(cfg.SampleRate, cfg.UpdateRate),
		ctx:       ctx,
	}, nil
}

// captureBlockSize is SampleRate/UpdateRate samples, floored at one sample
// so a misconfigured rate can never stall the backend callback.
func captureBlockSize(sampleRate, updateRate int) int {
	if updateRate < 1 {
		updateRate = 1
	}
	n := sampleRate / updateRate
	if n < 1 {
		n = 1
	}
	return n
}

// Start opens the default capture device and begins pushing blocks. A
// second Start without an intervening Stop is refused.
func (m *Mic) Start() error {
	m.mu.Lock()
	active := m.device != nil
	m.mu.Unlock()
	if active {
		return lipsync.ErrSessionActive
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onFrames,
	})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()

	m.logger.Info().Int("sample_rate", m.cfg.SampleRate).Int("update_rate", m.cfg.UpdateRate).Msg("Microphone capture started")
	return nil
}

// Stop closes the device and finishes the queue.
func (m *Mic) Stop() {
	m.mu.Lock()
	device := m.device
	m.device = nil
	dropped := m.dropped
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	m.queue.Finish()

	if dropped > 0 {
		m.logger.Warn().Int("blocks", dropped).Msg("Capture blocks dropped by slow consumer")
	}
	m.logger.Info().Msg("Microphone capture stopped")
}

// Close releases the audio backend. Call after Stop.
func (m *Mic) Close() {
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}

// onFrames runs on the audio backend's thread: accumulate samples into
// engine-sized blocks and hand them off without blocking.
func (m *Mic) onFrames(_, samples []byte, frameCount uint32) {
	if frameCount == 0 {
		return
	}
	blockSize := m.blockSize

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < int(frameCount); i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(samples[i*4:]))
		m.pending = append(m.pending, float64(v))
	}
	for len(m.pending) >= blockSize {
		block := make(lipsync.Block, blockSize)
		copy(block, m.pending[:blockSize])
		m.pending = append(m.pending[:0], m.pending[blockSize:]...)
		if !m.queue.TryPush(block) {
			m.dropped++
		}
	}
}
