package devicepool

import (
	"github.com/tphakala/audiopool/internal/errors"
)

// Component identifier for device pool errors
const ComponentDevicePool = "devicepool"

var (
	// ErrNoFactory is returned when a device is requested before a factory is registered
	ErrNoFactory = errors.New(errors.NewStd("no device factory registered")).
		Component(ComponentDevicePool).
		Category(errors.CategoryConfiguration).
		Context("resource", "device_factory_missing").
		Build()

	// ErrFactoryAlreadyRegistered is returned by a second RegisterFactory call
	ErrFactoryAlreadyRegistered = errors.New(errors.NewStd("device factory already registered")).
		Component(ComponentDevicePool).
		Category(errors.CategoryConfiguration).
		Context("resource", "device_factory_duplicate").
		Build()

	// ErrNilFactory is returned when RegisterFactory is given nil
	ErrNilFactory = errors.New(errors.NewStd("device factory is nil")).
		Component(ComponentDevicePool).
		Category(errors.CategoryValidation).
		Context("resource", "device_factory_nil").
		Build()

	// ErrDeviceCreateFailed is returned when the factory cannot build a device
	ErrDeviceCreateFailed = errors.New(errors.NewStd("device factory failed to create a device")).
		Component(ComponentDevicePool).
		Category(errors.CategoryDevice).
		Context("resource", "device_create").
		Build()

	// ErrDeviceInitFailed is returned when a new device fails to initialize
	ErrDeviceInitFailed = errors.New(errors.NewStd("audio device failed to initialize")).
		Component(ComponentDevicePool).
		Category(errors.CategoryDevice).
		Context("resource", "device_init").
		Build()

	// ErrNoMainDevice is returned when a request must share the main device but none exists
	ErrNoMainDevice = errors.New(errors.NewStd("no main audio device to share")).
		Component(ComponentDevicePool).
		Category(errors.CategoryState).
		Context("resource", "main_device").
		Build()

	// ErrSlotTableFull is returned when no slot index is left
	ErrSlotTableFull = errors.New(errors.NewStd("device slot table is full")).
		Component(ComponentDevicePool).
		Category(errors.CategoryLimit).
		Context("resource", "device_slots").
		Build()
)
