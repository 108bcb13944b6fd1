// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "logs/audiopool.log")
	v.SetDefault("log.file.maxsize", 100)
	v.SetDefault("log.file.maxbackups", 3)
	v.SetDefault("log.file.maxage", 28)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("pool.allowmultipledevices", true)
	v.SetDefault("pool.defaultdevices", DefaultAllowedDevices)
	v.SetDefault("pool.maxdevices", MaxAllowedDevices)
	v.SetDefault("pool.minfreeindices", DefaultMinFreeIndices)

	v.SetDefault("quality.levels", []map[string]any{
		{"name": "low", "maxchannels": 16},
		{"name": "medium", "maxchannels": 32},
		{"name": "high", "maxchannels": 64},
		{"name": "epic", "maxchannels": 96},
	})
	v.SetDefault("quality.current", 2)

	v.SetDefault("audiothread.enabled", true)
	v.SetDefault("audiothread.interval", 10*time.Millisecond)
	v.SetDefault("audiothread.queuesize", 1024)
	v.SetDefault("audiothread.priority", -10)

	v.SetDefault("render.samplerate", 48000)
	v.SetDefault("render.channels", 2)
	v.SetDefault("render.framesperbuffer", 480)
	v.SetDefault("render.output", OutputNull)
	v.SetDefault("render.fadein", 50*time.Millisecond)
	v.SetDefault("render.ringframes", 48000)

	v.SetDefault("resources.freedretention", 5*time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:8095")
	v.SetDefault("telemetry.sentrydsn", "")
}
