package main

import (
	"fmt"
	"log/slog"

	"odysseywalk/pkg/config"
	"odysseywalk/pkg/llm/failover"
	"odysseywalk/pkg/llm/gemini"
	"odysseywalk/pkg/llm/openrouter"
	"odysseywalk/pkg/llm/prompts"
	"odysseywalk/pkg/location"
	"odysseywalk/pkg/request"
	"odysseywalk/pkg/tracker"
	"odysseywalk/pkg/tts"
	"odysseywalk/pkg/tts/edgetts"
	"odysseywalk/pkg/tts/fishaudio"
	"odysseywalk/pkg/tts/narration"
)

const promptsDir = "configs/prompts"

// initTTS builds the synthesis chain in the configured engine order,
// skipping engines without credentials.
func initTTS(cfg *config.Config, rc *request.Client, tr *tracker.Tracker) (tts.Synthesizer, error) {
	var providers []tts.Synthesizer
	for _, name := range cfg.TTS.Engines {
		switch name {
		case "narration":
			if cfg.TTS.Narration.URL == "" {
				slog.Info("TTS: narration endpoint not configured, skipping")
				continue
			}
			providers = append(providers, narration.NewProvider(rc, narration.Config{
				URL:     cfg.TTS.Narration.URL,
				APIKey:  cfg.TTS.Narration.Key,
				Timeout: cfg.TTS.Narration.Timeout.Std(),
			}))
		case "fish-audio":
			if cfg.TTS.FishAudio.Key == "" {
				slog.Info("TTS: Fish Audio key not configured, skipping")
				continue
			}
			providers = append(providers, fishaudio.NewProvider(rc, fishaudio.Config{
				APIKey: cfg.TTS.FishAudio.Key,
				Model:  cfg.TTS.FishAudio.Model,
				Voices: tts.NarrationVoices,
			}))
		case "edge-tts":
			if !cfg.TTS.EdgeTTS.Enabled {
				continue
			}
			ecfg := edgetts.Config{}.ConfigFromEnv()
			if !ecfg.Configured() {
				slog.Info("TTS: Edge TTS handshake not configured, skipping")
				continue
			}
			providers = append(providers, edgetts.NewProvider(ecfg, tr))
		default:
			slog.Warn("TTS: unknown engine in config", "engine", name)
		}
	}

	chain, err := tts.NewChain(providers...)
	if err != nil {
		return nil, err
	}
	slog.Info("TTS: engines ready", "count", len(providers))
	return chain, nil
}

// locationSources are the two position providers and the foreground flag
// that suspends the real one.
type locationSources struct {
	Sim        *location.SimProvider
	Real       location.Provider
	Visibility *location.VisibilityFlag
}

func initLocation(cfg *config.Config) locationSources {
	src := locationSources{
		Sim: location.NewSimProvider(location.SimConfig{
			Step:           cfg.Location.SimStep.Std(),
			MatchTolerance: location.DefaultSimConfig().MatchTolerance,
		}, realClock),
		Visibility: &location.VisibilityFlag{},
	}
	if cfg.Location.GPSDAddress == "" {
		slog.Info("Location: no gpsd address, real mode disabled")
		return src
	}
	src.Real = location.NewRealProvider(location.NewGPSDSensor(cfg.Location.GPSDAddress), src.Visibility, location.RealConfig{
		Throttle: cfg.Location.Throttle.Std(),
		Watch: location.WatchOptions{
			HighAccuracy: cfg.Location.HighAccuracy,
			MaximumAge:   cfg.Location.MaximumAge.Std(),
			Timeout:      cfg.Location.Timeout.Std(),
		},
		RetryDelay: cfg.Location.RetryDelay.Std(),
	}, realClock)
	slog.Info("Location: gpsd sensor configured", "addr", cfg.Location.GPSDAddress)
	return src
}

// initLLM chains the answer providers with the configured one first. The
// Gemini client is returned as well for the startup model check.
func initLLM(cfg *config.Config, rc *request.Client, tr *tracker.Tracker) (*failover.Provider, *gemini.Client, error) {
	pm, err := prompts.NewManager(promptsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize prompt manager: %w", err)
	}

	gc, err := gemini.NewClient(cfg.LLM.Gemini, gemini.Options{
		Prompts: pm,
		Tracker: tr,
		LogPath: cfg.Log.LLM.Path,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize gemini: %w", err)
	}
	oc, err := openrouter.NewClient(cfg.LLM.OpenRouter, rc, openrouter.Options{
		Prompts: pm,
		LogPath: cfg.Log.LLM.Path,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize openrouter: %w", err)
	}

	members := []failover.Member{gc, oc}
	if cfg.LLM.Provider == "openrouter" {
		members = []failover.Member{oc, gc}
	}
	prov, err := failover.New(members...)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("LLM: providers ready", "order", prov.Names())
	return prov, gc, nil
}
