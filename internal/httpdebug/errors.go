package httpdebug

import (
	"github.com/tphakala/audiopool/internal/errors"
)

// ComponentHTTPDebug identifies errors raised by the diagnostics server.
const ComponentHTTPDebug = "httpdebug"

// ErrUnknownDevice is returned for handles that do not name a live device.
var ErrUnknownDevice = errors.New(errors.NewStd("unknown device handle")).
	Component(ComponentHTTPDebug).
	Category(errors.CategoryHandle).
	Context("resource", "device_handle").
	Build()
