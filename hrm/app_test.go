package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itohio/gopulse/pkg/config"
	"github.com/itohio/gopulse/pkg/menu"
	"github.com/itohio/gopulse/pkg/ppg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualDevice hands the sink to the test instead of sampling on its own.
type manualDevice struct {
	sink      ppg.Sink
	connected bool
	closed    int
}

func (d *manualDevice) Connect(sink ppg.Sink) error {
	d.sink = sink
	d.connected = true
	return nil
}

func (d *manualDevice) Close() error {
	d.connected = false
	d.closed++
	return nil
}

func (d *manualDevice) IsConnected() bool { return d.connected }

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = backend
	cfg.Storage.Path = filepath.Join(t.TempDir(), "history")
	cfg.Session.Duration = 10 * time.Second
	return cfg
}

func TestApp_HeartRatePage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "file")
	dev := &manualDevice{}

	a, err := newApp(cfg, dev)
	require.NoError(t, err)
	require.NoError(t, a.start())

	a.Confirm(ctx) // Measure HR
	v := a.Step(ctx)
	require.Equal(t, menu.HeartRate, v.Page)
	assert.True(t, v.Measuring)

	wave := ppg.NewWaveform(config.MockConfig{HeartRate: 60, Baseline: 30000, Amplitude: 12000}, cfg.Sampling.RateHz, 1)
	for range 500 {
		for range 5 {
			dev.sink.Push(wave.ReadU16())
		}
		v = a.Step(ctx)
	}
	assert.False(t, v.Measuring)
	assert.Equal(t, 60, v.HeartRate)
	assert.NotEmpty(t, v.Trace)

	require.NoError(t, a.close())
	assert.Equal(t, 1, dev.closed)
}

func TestApp_SessionStoresResult(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "sqlite")
	cfg.Session.Duration = 3 * time.Second
	dev := &manualDevice{}

	a, err := newApp(cfg, dev)
	require.NoError(t, err)
	require.NoError(t, a.start())
	defer a.close()

	a.Rotate(1)
	a.Confirm(ctx) // HRV analysis intro
	a.Confirm(ctx) // start capture

	wave := ppg.NewWaveform(config.MockConfig{HeartRate: 75, Baseline: 30000, Amplitude: 12000}, cfg.Sampling.RateHz, 1)
	deadline := time.Now().Add(15 * time.Second)
	var v menu.View
	for time.Now().Before(deadline) {
		// Ten samples per 20 ms step runs the signal faster than real time.
		for range 10 {
			dev.sink.Push(wave.ReadU16())
		}
		v = a.Step(ctx)
		if len(v.Result) > 0 || v.NoResult {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotEmpty(t, v.Result, "session did not complete")

	snap, found, err := a.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 800, snap.MeanPPI)
	assert.Equal(t, 0, snap.SDNN)
}

func TestRunFlags_Apply(t *testing.T) {
	cfg := config.Default()
	runFlags{
		port:      "/dev/ttyUSB1",
		storage:   "sqlite",
		storePath: "h.db",
		natsURL:   "nats://example:4222",
		wsAddr:    ":9000",
	}.apply(cfg)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "h.db", cfg.Storage.Path)
	assert.True(t, cfg.Publish.Enabled)
	assert.Equal(t, "nats://example:4222", cfg.Publish.URL)
	assert.Equal(t, ":9000", cfg.Display.WebSocketAddr)

	def := config.Default()
	runFlags{}.apply(def)
	assert.Equal(t, config.Default(), def)
}

func TestHistoryCmd_NoData(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "history.json")
	require.NoError(t, cfg.Save(cfgPath))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"history", "--config", cfgPath})
	require.NoError(t, root.Execute())
	assert.Equal(t, "no data yet\n", out.String())
}
