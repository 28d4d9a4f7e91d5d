package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrEmpty is returned when input holds no audio.
var ErrEmpty = errors.New("no audio data")

// DecodeError reports a malformed or unsupported upload.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode audio: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Sniff guesses the container format from the leading bytes.
// Anything unrecognised is treated as MP3, which has no fixed magic.
func Sniff(raw []byte) string {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return "wav"
	case len(raw) >= 4 && string(raw[0:4]) == "fLaC":
		return "flac"
	case len(raw) >= 4 && string(raw[0:4]) == "OggS":
		return "vorbis"
	}
	return "mp3"
}

// Decode turns an uploaded file into a Buffer at SampleRate.
func Decode(raw []byte) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: ErrEmpty}
	}

	format := Sniff(raw)
	r := bytes.NewReader(raw)

	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)
	switch format {
	case "wav":
		s, f, err = wav.Decode(r)
	case "flac":
		s, f, err = flac.Decode(r)
	case "vorbis":
		s, f, err = vorbis.Decode(io.NopCloser(r))
	default:
		s, f, err = mp3.Decode(io.NopCloser(r))
	}
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	defer s.Close()

	var src beep.Streamer = s
	expected := s.Len()
	if f.SampleRate != beep.SampleRate(SampleRate) {
		src = beep.Resample(4, f.SampleRate, beep.SampleRate(SampleRate), s)
		if f.SampleRate > 0 {
			expected = int(int64(expected) * SampleRate / int64(f.SampleRate))
		}
	}

	frames, err := drain(src, expected)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if len(frames) == 0 {
		return nil, &DecodeError{Format: format, Err: ErrEmpty}
	}
	return NewBuffer(frames, SampleRate), nil
}

// drain reads a streamer to exhaustion.
func drain(s beep.Streamer, sizeHint int) ([][2]float64, error) {
	frames := make([][2]float64, 0, max(sizeHint, 0)+FrameSize)
	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		frames = append(frames, chunk[:n]...)
		if !ok || n == 0 {
			break
		}
	}
	return frames, s.Err()
}

// FloatToInt16 converts stereo float frames to interleaved int16 samples,
// clipping to [-1, 1].
func FloatToInt16(frames [][2]float64, dst []int16) []int16 {
	if cap(dst) < len(frames)*Channels {
		dst = make([]int16, len(frames)*Channels)
	}
	dst = dst[:len(frames)*Channels]
	for i, fr := range frames {
		dst[i*2] = toInt16(fr[0])
		dst[i*2+1] = toInt16(fr[1])
	}
	return dst
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
