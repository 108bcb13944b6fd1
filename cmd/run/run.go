package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tphakala/audiopool/internal/audiothread"
	"github.com/tphakala/audiopool/internal/backend/malgo"
	"github.com/tphakala/audiopool/internal/backend/software"
	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/httpdebug"
	"github.com/tphakala/audiopool/internal/logging"
	"github.com/tphakala/audiopool/internal/observability/metrics"
	"github.com/tphakala/audiopool/internal/soundbuffer"
)

const decodeConcurrency = 4

type options struct {
	devices  int
	forceNew bool
	listen   string
	duration time.Duration
}

// Command creates the run command, which drives a device pool until interrupted.
func Command() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run [sound files...]",
		Short: "Run the device pool and play sound files",
		Long: "Create audio devices through the pool, play the given sound files on the active " +
			"device and keep rendering until the duration elapses or the process is interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), conf.GetSettings(), opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.devices, "devices", "n", 1, "Number of device requests to make")
	cmd.Flags().BoolVar(&opts.forceNew, "force-new", false, "Always create a new device instead of sharing the main device")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Serve diagnostics on this address (overrides telemetry.listen)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop after this long, 0 runs until interrupted")

	return cmd
}

func execute(ctx context.Context, settings *conf.Settings, opts options, files []string) error {
	logger := logging.ForService("run")
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	registry := prometheus.NewRegistry()
	pm, err := metrics.NewDevicePoolMetrics(registry)
	if err != nil {
		return fmt.Errorf("error registering metrics: %w", err)
	}

	thread := audiothread.New(settings.AudioThread, audiothread.WithMetrics(pm))
	m := devicepool.New(settings,
		devicepool.WithAudioThread(thread),
		devicepool.WithMetrics(pm))

	opener := software.OpenDiscardSink
	if settings.Render.Output == conf.OutputMalgo {
		opener = malgo.Open
	}
	factory, err := software.NewFactory(settings.Render, m.Resources(),
		software.WithSinkOpener(opener),
		software.WithMetrics(pm))
	if err != nil {
		return err
	}
	if err := m.RegisterFactory(factory); err != nil {
		return err
	}

	if settings.AudioThread.Enabled {
		thread.SetTick(func() { m.UpdateAll(true) })
		if err := thread.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("error starting audio thread: %w", err)
		}
		defer func() {
			if err := thread.Stop(); err != nil {
				logger.Warn("audio thread did not stop cleanly", "error", err)
			}
		}()
	}
	// Devices are torn down while the audio thread still runs.
	defer m.ShutdownAll()

	for range opts.devices {
		res, err := m.CreateDevice(opts.forceNew)
		if err != nil {
			return err
		}
		logger.Info("audio device ready",
			"handle", res.Handle,
			"new_device", res.IsNewDevice,
			"main_worlds", m.NumMainDeviceWorlds())
	}

	loader := soundbuffer.NewLoader(m.Resources())
	defer loader.Wait()
	if err := play(ctx, m, loader, files, logger); err != nil {
		return err
	}

	listen := opts.listen
	if listen == "" && settings.Telemetry.Enabled {
		listen = settings.Telemetry.Listen
	}
	if listen != "" {
		srv := httpdebug.New(m, registry)
		if err := srv.Start(listen); err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Warn("diagnostics server shutdown failed", "error", err)
			}
		}()
	}

	if !settings.AudioThread.Enabled {
		runInline(ctx, m, settings.AudioThread.Interval)
	}
	<-ctx.Done()

	logger.Info("stopping", "reason", context.Cause(ctx))
	return nil
}

// play decodes files and starts each on the active device.
func play(ctx context.Context, m *devicepool.Manager, loader *soundbuffer.Loader, files []string, logger *slog.Logger) error {
	if len(files) == 0 {
		return nil
	}

	waves := make([]*soundbuffer.Wave, len(files))
	for i, path := range files {
		waves[i] = soundbuffer.NewWave(path)
	}
	buffers, err := loader.LoadAll(ctx, waves, decodeConcurrency)
	if err != nil {
		return err
	}

	dev, ok := m.Device(m.ActiveDevice())
	if !ok {
		return fmt.Errorf("no active device to play on")
	}
	player, ok := dev.(*software.Device)
	if !ok {
		return fmt.Errorf("active device %T cannot play sounds", dev)
	}

	class := &devicepool.SoundClass{Name: "master", Volume: 1}
	m.RegisterSoundClass(class)

	for _, buf := range buffers {
		id, err := player.Play(buf, class)
		if err != nil {
			return fmt.Errorf("%s: %w", buf.Path(), err)
		}
		logger.Info("playing sound",
			"name", buf.ResourceName(),
			"playback_id", id,
			"duration", buf.Duration())
	}
	return nil
}

// runInline drives update passes from this goroutine when the audio
// thread is disabled.
func runInline(ctx context.Context, m *devicepool.Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateAll(true)
		}
	}
}
