// Package playback plays streamed sample blocks on the default output
// device while the lip-sync file source consumes them.
package playback

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/normanking/emotedriver/internal/lipsync"
)

// Player implements lipsync.Sink on top of oto. Blocks are converted to
// 16-bit little-endian PCM and fed to the device through a pipe.
type Player struct {
	ctx    *oto.Context
	player *oto.Player
	pw     *io.PipeWriter
	tmp    []byte
}

// NewPlayer opens the default output device at the given mono sample rate.
func NewPlayer(sampleRate int) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	return &Player{ctx: ctx, player: player, pw: pw}, nil
}

// Write converts and enqueues one block. Blocks until the device drains
// enough, which keeps file streaming roughly real time.
func (p *Player) Write(block lipsync.Block) error {
	p.tmp = floatBlockTo16BitLE(block, p.tmp[:0])
	if _, err := p.pw.Write(p.tmp); err != nil {
		return fmt.Errorf("write to output device: %w", err)
	}
	return nil
}

// Close lets queued audio finish, then releases the device.
func (p *Player) Close() error {
	p.pw.Close()
	for p.player.IsPlaying() && p.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("close player: %w", err)
	}
	return nil
}

// floatBlockTo16BitLE converts float64 samples in [-1,1] to 16-bit
// little-endian PCM, reusing dst's capacity.
func floatBlockTo16BitLE(block lipsync.Block, dst []byte) []byte {
	for _, v := range block {
		var s int16
		switch {
		case v <= -1.0:
			s = -32767
		case v >= 1.0:
			s = 32767
		default:
			s = int16(v * 32767)
		}
		dst = append(dst, byte(s), byte(s>>8))
	}
	return dst
}
