package software

import (
	"github.com/tphakala/audiopool/internal/errors"
)

// Component identifier for software device errors
const ComponentSoftware = "software-device"

var (
	// ErrNotInitialized is returned by Play before Init succeeded or after Teardown
	ErrNotInitialized = errors.New(errors.NewStd("software device not initialized")).
		Component(ComponentSoftware).
		Category(errors.CategoryState).
		Context("resource", "software_device_state").
		Build()

	// ErrBufferReleased is returned when playing a released buffer
	ErrBufferReleased = errors.New(errors.NewStd("sound buffer already released")).
		Component(ComponentSoftware).
		Category(errors.CategoryBuffer).
		Context("resource", "buffer_released").
		Build()

	// ErrBufferNotTracked is returned when playing a buffer the tracker does not know
	ErrBufferNotTracked = errors.New(errors.NewStd("sound buffer not tracked")).
		Component(ComponentSoftware).
		Category(errors.CategoryBuffer).
		Context("resource", "buffer_untracked").
		Build()

	// ErrVoiceLimit is returned when every channel is busy
	ErrVoiceLimit = errors.New(errors.NewStd("no free voice")).
		Component(ComponentSoftware).
		Category(errors.CategoryLimit).
		Context("resource", "voices").
		Build()

	// ErrInvalidRenderSettings is returned by NewFactory for unusable render settings
	ErrInvalidRenderSettings = errors.New(errors.NewStd("invalid render settings")).
		Component(ComponentSoftware).
		Category(errors.CategoryConfiguration).
		Context("resource", "render_settings").
		Build()
)
