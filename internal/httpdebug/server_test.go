package httpdebug

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiopool/internal/backend/software"
	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/observability/metrics"
	"github.com/tphakala/audiopool/internal/soundbuffer"
)

type testEnv struct {
	manager *devicepool.Manager
	server  *Server
	handles []devicepool.Handle
}

func newTestEnv(t *testing.T, devices int) *testEnv {
	t.Helper()

	settings := conf.Defaults()
	settings.AudioThread.Priority = 0
	settings.Render.RingFrames = 64

	registry := prometheus.NewRegistry()
	pm, err := metrics.NewDevicePoolMetrics(registry)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := devicepool.New(settings,
		devicepool.WithLogger(logger),
		devicepool.WithMetrics(pm))

	f, err := software.NewFactory(settings.Render, m.Resources(), software.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, m.RegisterFactory(f))
	t.Cleanup(m.ShutdownAll)

	env := &testEnv{manager: m, server: New(m, registry)}
	env.server.logger = logger
	for range devices {
		res, err := m.CreateDevice(true)
		require.NoError(t, err)
		env.handles = append(env.handles, res.Handle)
	}
	return env
}

func (env *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.server.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetDevices(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	rec := env.do(t, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[DevicesResponse](t, rec)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, env.handles[0], resp.Main)
	assert.Equal(t, env.handles[0], resp.Active)
	assert.Equal(t, devicepool.NoHandle, resp.Solo)
	assert.True(t, resp.Devices[0].Main)
}

func TestDeviceFocusEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	second := env.handles[1]

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		check      func(t *testing.T, resp DevicesResponse)
	}{
		{
			name:       "set active",
			method:     http.MethodPost,
			target:     fmt.Sprintf("/api/v1/devices/%d/active", second),
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp DevicesResponse) {
				t.Helper()
				assert.Equal(t, second, resp.Active)
			},
		},
		{
			name:       "set solo",
			method:     http.MethodPost,
			target:     fmt.Sprintf("/api/v1/devices/%d/solo", env.handles[0]),
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp DevicesResponse) {
				t.Helper()
				assert.Equal(t, env.handles[0], resp.Solo)
				assert.False(t, resp.Devices[0].Muted)
				assert.True(t, resp.Devices[1].Muted)
			},
		},
		{
			name:       "clear solo",
			method:     http.MethodDelete,
			target:     "/api/v1/solo",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp DevicesResponse) {
				t.Helper()
				assert.Equal(t, devicepool.NoHandle, resp.Solo)
			},
		},
	}

	// Cases build on each other, so they run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			tt.check(t, decode[DevicesResponse](t, rec))
		})
	}
}

func TestInvalidHandles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	stale := env.handles[0]
	require.True(t, env.manager.ShutdownDevice(stale))

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantMsg    string
	}{
		{"stale handle", fmt.Sprintf("/api/v1/devices/%d/active", stale), http.StatusNotFound, "Device not found"},
		{"no handle", fmt.Sprintf("/api/v1/devices/%d/solo", devicepool.NoHandle), http.StatusNotFound, "Device not found"},
		{"not a number", "/api/v1/devices/main/active", http.StatusBadRequest, "Invalid device handle"},
		{"too large", "/api/v1/devices/8589934592/active", http.StatusBadRequest, "Invalid device handle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodPost, tt.target, "")
			require.Equal(t, tt.wantStatus, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
		})
	}
}

func TestGetBuffers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rt := env.manager.Resources()
	for name, n := range map[string]int{"wind": 256, "Bell": 1024, "alarm": 512} {
		rt.Track(nil, soundbuffer.NewBuffer(name, &soundbuffer.PCM{
			Samples:    make([]float32, n),
			SampleRate: 44100,
			Channels:   1,
			BitDepth:   16,
		}))
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantOrder  []string
	}{
		{"default sorts by size", "", http.StatusOK, []string{"Bell", "alarm", "wind"}},
		{"by name", "?sort=name", http.StatusOK, []string{"alarm", "Bell", "wind"}},
		{"long names", "?sort=size&long=true", http.StatusOK, []string{"Bell", "alarm", "wind"}},
		{"bad sort", "?sort=age", http.StatusBadRequest, nil},
		{"bad long", "?long=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodGet, "/api/v1/buffers"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantOrder == nil {
				return
			}

			listing := decode[devicepool.BufferListing](t, rec)
			var got []string
			for _, b := range listing.Buffers {
				got = append(got, b.Name)
			}
			assert.Equal(t, tt.wantOrder, got)
			assert.Equal(t, int64((256+1024+512)*4), listing.TotalBytes)
		})
	}
}

func TestDebugEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)

	rec := env.do(t, http.MethodPost, "/api/v1/debug/play-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ToggleResponse](t, rec).Enabled)
	assert.True(t, env.manager.IsPlayAllDeviceAudio())

	rec = env.do(t, http.MethodPost, "/api/v1/debug/visualize3d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ToggleResponse](t, rec).Enabled)
	assert.True(t, env.manager.IsVisualizeDebug3dEnabled())

	rec = env.do(t, http.MethodPost, "/api/v1/debug/stats/voices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ToggleResponse](t, rec).Enabled)

	for kind, want := range map[string]func(devicepool.DebugState) string{
		"class": func(s devicepool.DebugState) string { return s.SoloSoundClass },
		"wave":  func(s devicepool.DebugState) string { return s.SoloSoundWave },
		"cue":   func(s devicepool.DebugState) string { return s.SoloSoundCue },
	} {
		rec = env.do(t, http.MethodPut, "/api/v1/debug/solo/"+kind, `{"name":"footsteps"}`)
		require.Equal(t, http.StatusOK, rec.Code, kind)
		assert.Equal(t, "footsteps", want(decode[devicepool.DebugState](t, rec)), kind)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/debug/mixer-sound", `{"name":"ambience"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ambience", env.manager.DebugState().MixerDebugSound)

	rec = env.do(t, http.MethodPut, "/api/v1/debug/solo/submix", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/debug/mixer-sound", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "audiopool_active_devices 1")
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	server := New(env.manager, nil)

	rec := httptest.NewRecorder()
	server.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	require.NoError(t, env.server.Start("127.0.0.1:0"))
	addr := env.server.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/api/v1/devices")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.server.Shutdown(t.Context()))
}

func TestShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	assert.NoError(t, env.server.Shutdown(t.Context()))
}
