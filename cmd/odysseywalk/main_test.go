package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/config"
	"odysseywalk/pkg/db"
	"odysseywalk/pkg/llm/gemini"
	"odysseywalk/pkg/probe"
	"odysseywalk/pkg/tour"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	tempConfig := `
server:
    address: localhost:0
log:
    server:
        path: "` + filepath.Join(dir, "server.log") + `"
        level: "debug"
    requests:
        path: "` + filepath.Join(dir, "requests.log") + `"
    events:
        path: "` + filepath.Join(dir, "events.log") + `"
    tts:
        path: "` + filepath.Join(dir, "tts.log") + `"
    llm:
        path: "` + filepath.Join(dir, "llm.log") + `"
db:
    path: "` + filepath.Join(dir, "test.db") + `"
location:
    mode: demo
    gpsd_address: ""
audio:
    output: silent
tts:
    engines: []
tour:
    path: demo
`
	cfgPath := filepath.Join(dir, "odysseywalk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(tempConfig), 0o644))

	// A short deadline exercises the whole startup and shutdown sequence.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, options{ConfigPath: cfgPath, Demo: true}))
	assert.FileExists(t, filepath.Join(dir, "test.db"))
}

func TestLoadTour(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Tour.Path = filepath.Join(t.TempDir(), "missing.json")
	b, err := loadTour(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "paris-latin-quarter", b.Tour.ID, "missing file falls back to the demo")

	b, err = loadTour(cfg, "demo")
	require.NoError(t, err)
	assert.Len(t, b.POIs, 4)

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = loadTour(cfg, broken)
	assert.Error(t, err)
}

func TestGeofenceConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	g := geofenceConfig(cfg)
	assert.Equal(t, 3, g.NextK)
	assert.Equal(t, 30.0, g.AccuracyClampMax)
	assert.Equal(t, 5.0, g.ExitHysteresisM)
	assert.Equal(t, 35.0, g.DefaultRadiusM)
	assert.Equal(t, time.Minute, g.Cooldown)
}

func TestInitLocation_NoGPSD(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Location.GPSDAddress = ""
	src := initLocation(cfg)
	assert.NotNil(t, src.Sim)
	assert.Nil(t, src.Real)
	assert.True(t, src.Visibility.Visible())
}

func TestStartupProbes(t *testing.T) {
	dbConn, err := db.Init(filepath.Join(t.TempDir(), "probe.db"))
	require.NoError(t, err)
	defer dbConn.Close()

	bundle, err := tour.Demo()
	require.NoError(t, err)

	gcfg := config.DefaultConfig().LLM.Gemini
	gcfg.Key = ""
	gc, err := gemini.NewClient(gcfg, gemini.Options{})
	require.NoError(t, err)

	results := probe.Run(context.Background(), startupProbes(dbConn, bundle, nil, gc))
	require.Len(t, results, 4)
	assert.True(t, results[0].Passed(), "database")
	assert.True(t, results[1].Passed(), "tour")
	assert.False(t, results[2].Passed(), "no speech engine")
	assert.NoError(t, probe.AnalyzeResults(results), "only non-critical probes fail")
}

func TestCheckTour(t *testing.T) {
	assert.Error(t, checkTour(nil))

	bundle, err := tour.Demo()
	require.NoError(t, err)
	assert.NoError(t, checkTour(bundle))

	empty := *bundle
	empty.POIs = nil
	assert.ErrorContains(t, checkTour(&empty), "no stops")
}
