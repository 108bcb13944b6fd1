// Package telemetry wires error reporting to Sentry when a DSN is configured.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
)

const flushTimeout = 2 * time.Second

// Init initializes the Sentry SDK and installs it as the error reporter.
// It returns false without error when no DSN is configured.
func Init(settings conf.TelemetrySettings, release string) (bool, error) {
	if settings.SentryDSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "audiopool@" + release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logger().Info("error reporting enabled", "release", release)
	return true, nil
}

// Flush waits for queued events to be delivered.
func Flush() {
	if r := errors.GetTelemetryReporter(); r == nil || !r.IsEnabled() {
		return
	}
	if !sentry.Flush(flushTimeout) {
		logger().Warn("timed out flushing error reports", "timeout", flushTimeout)
	}
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	return event
}

func logger() *slog.Logger {
	if l := logging.ForService("telemetry"); l != nil {
		return l
	}
	return slog.Default()
}
