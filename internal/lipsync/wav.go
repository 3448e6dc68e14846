package lipsync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Errors for malformed audio files.
var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("unsupported WAV sample format")
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// wavReader streams sample blocks out of a PCM or float32 WAV file,
// downmixed to mono float64.
type wavReader struct {
	f          *os.File
	sampleRate int
	channels   int
	format     uint16
	bitDepth   int
	remaining  int64 // bytes of sample data left
}

// openWAV parses the RIFF header up to the data chunk and leaves the reader
// positioned at the first sample.
func openWAV(path string) (*wavReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	w, err := parseWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func parseWAVHeader(f *os.File) (*wavReader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	w := &wavReader{f: f}
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			fmtBuf := make([]byte, size)
			if _, err := io.ReadFull(f, fmtBuf); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 {
				return nil, ErrNotWAV
			}
			w.format = binary.LittleEndian.Uint16(fmtBuf[0:2])
			w.channels = int(binary.LittleEndian.Uint16(fmtBuf[2:4]))
			w.sampleRate = int(binary.LittleEndian.Uint32(fmtBuf[4:8]))
			w.bitDepth = int(binary.LittleEndian.Uint16(fmtBuf[14:16]))
		case "data":
			if w.channels == 0 {
				return nil, ErrNotWAV
			}
			if err := w.checkFormat(); err != nil {
				return nil, err
			}
			w.remaining = size
			return w, nil
		default:
			// skip unknown chunks (LIST, fact, ...)
			if _, err := f.Seek(size+(size&1), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func (w *wavReader) checkFormat() error {
	switch {
	case w.format == wavFormatPCM && w.bitDepth == 16:
		return nil
	case w.format == wavFormatFloat && w.bitDepth == 32:
		return nil
	default:
		return fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, w.format, w.bitDepth)
	}
}

// ReadBlock reads up to n sample frames, downmixing channels by averaging.
// Returns io.EOF with a nil block once the data chunk is exhausted.
func (w *wavReader) ReadBlock(n int) (Block, error) {
	if w.remaining <= 0 {
		return nil, io.EOF
	}

	bytesPerSample := w.bitDepth / 8
	frameBytes := bytesPerSample * w.channels
	want := int64(n) * int64(frameBytes)
	if want > w.remaining {
		want = w.remaining - w.remaining%int64(frameBytes)
		if want <= 0 {
			w.remaining = 0
			return nil, io.EOF
		}
	}

	raw := make([]byte, want)
	read, err := io.ReadFull(w.f, raw)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	w.remaining -= int64(read)
	raw = raw[:read-read%frameBytes]
	if len(raw) == 0 {
		return nil, io.EOF
	}

	frames := len(raw) / frameBytes
	block := make(Block, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < w.channels; ch++ {
			off := i*frameBytes + ch*bytesPerSample
			sum += w.decodeSample(raw[off:])
		}
		block[i] = sum / float64(w.channels)
	}
	return block, nil
}

func (w *wavReader) decodeSample(b []byte) float64 {
	if w.format == wavFormatFloat {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return float64(int16(binary.LittleEndian.Uint16(b))) / 32768.0
}

// SampleRate reports the file's sample rate in Hz.
func (w *wavReader) SampleRate() int { return w.sampleRate }

// Close releases the underlying file.
func (w *wavReader) Close() error { return w.f.Close() }
