package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.control/internal/config"
	"github.com/banshee-data/rover.control/internal/telemetry"
)

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"listen", *listen, ":8080"},
		{"db", *dbPath, "rover.db"},
		{"dev", *devMode, false},
		{"thumbstick", *thumbstickOn, false},
		{"no-bridge", *noBridge, false},
		{"fixtures", *fixturesPath, "fixtures/thumbstick.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
			assert.NotNil(t, flag.Lookup(tc.name), "flag %s not registered", tc.name)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	saved := []string{*carURL, *port}
	t.Cleanup(func() { *carURL, *port = saved[0], saved[1] })

	*carURL = "http://10.0.0.7"
	*port = "/dev/ttyACM0"
	*noBridge = true
	t.Cleanup(func() { *noBridge = false })

	cfg := config.DefaultControlConfig()
	applyOverrides(cfg, map[string]bool{"car-url": true, "no-bridge": true})

	assert.Equal(t, "http://10.0.0.7", cfg.GetCarURL())
	assert.Equal(t, config.DefaultSerialPort, cfg.GetSerialPort(), "unset flags leave config alone")
	assert.False(t, cfg.GetBridgeCar())
	assert.True(t, config.DefaultControlConfig().GetBridgeCar())
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCarURL, cfg.GetCarURL())

	path := filepath.Join(t.TempDir(), "rover.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"car_url": "http://car.lan", "deadzone": 50}`), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://car.lan", cfg.GetCarURL())
	assert.Equal(t, 50, cfg.GetDeadzone())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReadFixtures(t *testing.T) {
	lines, err := readFixtures("../../fixtures/thumbstick.txt")
	require.NoError(t, err)
	require.NotEmpty(t, lines)

	samples := 0
	for _, l := range lines {
		if _, err := telemetry.ParseLine(l); err == nil {
			samples++
		}
	}
	assert.Equal(t, len(lines)-1, samples, "exactly one noise line in the fixtures")

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n  \n"), 0o644))
	_, err = readFixtures(empty)
	assert.Error(t, err)
}

func TestLogWriters(t *testing.T) {
	w := logWriters(false, false)
	assert.NotNil(t, w.Ops)
	assert.Nil(t, w.Diag)
	assert.Nil(t, w.Trace)

	w = logWriters(true, false)
	assert.NotNil(t, w.Diag)
	assert.Nil(t, w.Trace)

	w = logWriters(false, true)
	assert.NotNil(t, w.Diag)
	assert.NotNil(t, w.Trace)
}
