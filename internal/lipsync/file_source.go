package lipsync

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives each streamed block for playback. Implementations live in
// internal/playback; a nil sink disables playback.
type Sink interface {
	Write(Block) error
	Close() error
}

// FileSource reads a WAV file block-by-block at sampleRate/updateRate
// samples per block, optionally mirroring each block to a playback sink.
// Cancellation is cooperative, checked once per block; the end sentinel is
// emitted on cancellation and on end-of-file alike.
type FileSource struct {
	wav       *wavReader
	sink      Sink
	blockSize int
	period    time.Duration
	logger    zerolog.Logger

	ch        chan Block
	cancelled atomic.Bool
	startOnce sync.Once
}

// NewFileSource opens the file eagerly so an unreadable path surfaces as a
// start failure instead of a mid-session crash.
func NewFileSource(path string, updateRate int, logger zerolog.Logger) (*FileSource, error) {
	if updateRate < 1 {
		updateRate = 1
	}
	wav, err := openWAV(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		wav:       wav,
		blockSize: wav.SampleRate() / updateRate,
		period:    time.Second / time.Duration(updateRate),
		logger:    logger.With().Str("component", "filesource").Logger(),
		ch:        make(chan Block, 1),
	}, nil
}

// SampleRate reports the file's sample rate in Hz. Playback sinks must be
// opened at this rate, not the capture rate.
func (s *FileSource) SampleRate() int {
	return s.wav.SampleRate()
}

// SetSink attaches a playback sink. Must be called before Blocks; the sink
// rate has to match SampleRate, which is only known after open.
func (s *FileSource) SetSink(sink Sink) {
	s.sink = sink
}

// Blocks starts the producer loop on first call and returns the block
// channel.
func (s *FileSource) Blocks() <-chan Block {
	s.startOnce.Do(func() {
		go s.run()
	})
	return s.ch
}

// Stop requests cooperative cancellation. The producer observes the flag
// within one block period and still emits the end sentinel.
func (s *FileSource) Stop() {
	s.cancelled.Store(true)
}

func (s *FileSource) run() {
	defer func() {
		s.ch <- nil
		s.wav.Close()
		if s.sink != nil {
			if err := s.sink.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("playback sink close failed")
			}
		}
		if s.cancelled.Load() {
			s.logger.Info().Msg("file stream cancelled")
		} else {
			s.logger.Info().Msg("file stream finished")
		}
	}()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for !s.cancelled.Load() {
		block, err := s.wav.ReadBlock(s.blockSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error().Err(err).Msg("file stream read failed")
			}
			return
		}

		if s.sink != nil {
			if err := s.sink.Write(block); err != nil {
				s.logger.Warn().Err(err).Msg("playback sink write failed")
				s.sink = nil
			}
		}

		s.ch <- block
		<-ticker.C
	}
}
