package soundbuffer

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/audiopool/internal/errors"
)

// Format is a supported container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatFLAC
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatFLAC:
		return "flac"
	default:
		return "unknown"
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".flac":
		return FormatFLAC, nil
	default:
		return FormatUnknown, errors.New(fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))).
			FileContext(path, 0).
			Build()
	}
}

// PCM is decoded interleaved audio scaled to [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
	BitDepth   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// pcmChunkSamples is how many samples the WAV decoder reads per call.
const pcmChunkSamples = 16384

// Decode reads an entire WAV or FLAC stream.
func Decode(r io.ReadSeeker, format Format) (*PCM, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(r)
	case FormatFLAC:
		return decodeFLAC(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func decodeWAV(r io.ReadSeeker) (*PCM, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New(fmt.Errorf("%w: not a valid WAV file", ErrInvalidAudio)).
			Context("format", "wav").
			Build()
	}

	bitDepth := int(decoder.BitDepth)
	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, errors.New(fmt.Errorf("%w: no channels", ErrInvalidAudio)).
			Context("format", "wav").
			Build()
	}
	scale, offset, err := sampleScale(bitDepth, true)
	if err != nil {
		return nil, err
	}

	pcm := &PCM{
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, pcmChunkSamples-pcmChunkSamples%channels),
		Format: &audio.Format{SampleRate: pcm.SampleRate, NumChannels: channels},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
				Context("format", "wav").
				Build()
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			pcm.Samples = append(pcm.Samples, float32(sample-offset)/scale)
		}
	}
	return pcm, nil
}

func decodeFLAC(r io.Reader) (*PCM, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
			Context("format", "flac").
			Build()
	}

	bitDepth := decoder.BitsPerSample
	scale, _, err := sampleScale(bitDepth, false)
	if err != nil {
		return nil, err
	}
	width := bitDepth / 8

	pcm := &PCM{
		SampleRate: decoder.SampleRate,
		Channels:   decoder.NChannels,
		BitDepth:   bitDepth,
	}
	if decoder.TotalSamples > 0 {
		pcm.Samples = make([]float32, 0, int(decoder.TotalSamples)*decoder.NChannels)
	}

	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
				Context("format", "flac").
				Build()
		}

		for i := 0; i+width <= len(frame); i += width {
			var sample int32
			switch bitDepth {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			pcm.Samples = append(pcm.Samples, float32(sample)/scale)
		}
	}
	return pcm, nil
}

// sampleScale returns the divisor and zero offset for integer samples of bitDepth.
// 8-bit WAV samples are unsigned.
func sampleScale(bitDepth int, allow8 bool) (scale float32, offset int, err error) {
	switch bitDepth {
	case 8:
		if allow8 {
			return 128, 128, nil
		}
	case 16:
		return 32768, 0, nil
	case 24:
		return 8388608, 0, nil
	case 32:
		return 2147483648, 0, nil
	}
	return 0, 0, errors.New(fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)).
		Context("bit_depth", bitDepth).
		Build()
}
