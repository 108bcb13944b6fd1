package soundbuffer

import (
	"github.com/tphakala/audiopool/internal/errors"
)

// Component identifier for sound buffer errors
const ComponentSoundBuffer = "soundbuffer"

var (
	// ErrUnsupportedFormat is returned for files that are neither WAV nor FLAC
	ErrUnsupportedFormat = errors.New(errors.NewStd("unsupported audio format")).
		Component(ComponentSoundBuffer).
		Category(errors.CategoryValidation).
		Context("resource", "audio_format").
		Build()

	// ErrInvalidAudio is returned when a file cannot be decoded
	ErrInvalidAudio = errors.New(errors.NewStd("invalid audio data")).
		Component(ComponentSoundBuffer).
		Category(errors.CategoryFileParsing).
		Context("resource", "audio_data").
		Build()

	// ErrUnsupportedBitDepth is returned for sample widths the decoder cannot scale
	ErrUnsupportedBitDepth = errors.New(errors.NewStd("unsupported bit depth")).
		Component(ComponentSoundBuffer).
		Category(errors.CategoryValidation).
		Context("resource", "bit_depth").
		Build()
)
