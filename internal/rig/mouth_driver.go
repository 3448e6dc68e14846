package rig

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/emotedriver/internal/binding"
	"github.com/normanking/emotedriver/internal/lipsync"
)

// MouthDriverConfig tunes how frames translate into rig commands.
type MouthDriverConfig struct {
	// SetDuration is the easing duration for per-frame writes.
	SetDuration time.Duration
	// CloseDuration is the easing used to shut the mouth on natural
	// end-of-speech.
	CloseDuration time.Duration
}

// DefaultMouthDriverConfig matches the stock lip-sync tuning.
func DefaultMouthDriverConfig() MouthDriverConfig {
	return MouthDriverConfig{
		SetDuration:   5 * time.Millisecond,
		CloseDuration: 200 * time.Millisecond,
	}
}

// MouthDriver maps engine frames onto the rig control tagged MOUTH_OPEN.
// Register HandleFrame and HandleDone on the engine; the driver remaps each
// ratio into the bound parameter's numeric range.
type MouthDriver struct {
	ctrl   Controller
	param  *binding.Param
	cfg    MouthDriverConfig
	logger zerolog.Logger
}

// NewMouthDriver locates the MOUTH_OPEN parameter in the table. It refuses
// to build when the table has no resolved mouth control, so a session never
// starts against a rig that cannot express it.
func NewMouthDriver(ctrl Controller, table binding.Table, cfg MouthDriverConfig, logger zerolog.Logger) (*MouthDriver, error) {
	param, err := table.FindByUsage(binding.UsageMouthOpen)
	if err != nil {
		return nil, ErrNoMouthParam
	}
	if param.Name == "" {
		return nil, ErrNoMouthParam
	}
	return &MouthDriver{
		ctrl:   ctrl,
		param:  param,
		cfg:    cfg,
		logger: logger.With().Str("component", "mouthdriver").Logger(),
	}, nil
}

// Param returns the bound mouth parameter.
func (d *MouthDriver) Param() *binding.Param {
	return d.param
}

// HandleFrame drives the mouth control from one lip-sync frame. Send
// failures are logged and skipped; a dropped frame is invisible at 30 Hz.
func (d *MouthDriver) HandleFrame(f lipsync.Frame) {
	value := d.param.Remap(f.Ratio)
	if err := d.ctrl.SetVariable(d.param.Name, value, d.cfg.SetDuration); err != nil {
		d.logger.Debug().Err(err).Msg("Mouth frame dropped")
	}
}

// HandleDone eases the mouth shut on natural end-of-speech. An explicit
// stop leaves the mouth alone: the caller aborted mid-stream and may be
// about to start another session.
func (d *MouthDriver) HandleDone(reason lipsync.DoneReason) {
	if reason != lipsync.DoneFinished {
		return
	}
	d.logger.Info().Msg("Speech finished, closing mouth")
	if err := d.ctrl.SetVariable(d.param.Name, d.param.Range[0], d.cfg.CloseDuration); err != nil {
		d.logger.Warn().Err(err).Msg("Mouth close failed")
	}
}
