package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureBlockSize(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		updateRate int
		want       int
	}{
		{"stock rates", 16000, 30, 533},
		{"exact division", 48000, 30, 1600},
		{"zero sample rate", 0, 30, 1},
		{"sample rate below update rate", 10, 30, 1},
		{"zero update rate", 16000, 0, 16000},
		{"negative update rate", 16000, -5, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, captureBlockSize(tt.sampleRate, tt.updateRate))
		})
	}
}
