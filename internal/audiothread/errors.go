package audiothread

import (
	"github.com/tphakala/audiopool/internal/errors"
)

// Component identifier for audio thread errors
const ComponentAudioThread = "audiothread"

var (
	// ErrAlreadyRunning is returned when Start is called on a running thread
	ErrAlreadyRunning = errors.New(errors.NewStd("audio thread already running")).
		Component(ComponentAudioThread).
		Category(errors.CategoryState).
		Context("resource", "audio_thread_running").
		Build()

	// ErrNotRunning is returned when Stop is called on a thread that was never started
	ErrNotRunning = errors.New(errors.NewStd("audio thread not running")).
		Component(ComponentAudioThread).
		Category(errors.CategoryState).
		Context("resource", "audio_thread_stopped").
		Build()

	// ErrCommandPanicked is returned by RunSync when the command panics
	ErrCommandPanicked = errors.New(errors.NewStd("audio thread command panicked")).
		Component(ComponentAudioThread).
		Category(errors.CategoryAudioThread).
		Context("resource", "audio_thread_command").
		Build()
)
