package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Request  RequestConfig  `yaml:"request"`
	Geofence GeofenceConfig `yaml:"geofence"`
	Location LocationConfig `yaml:"location"`
	Audio    AudioConfig    `yaml:"audio"`
	TTS      TTSConfig      `yaml:"tts"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Tour     TourConfig     `yaml:"tour"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
	TTS      LogSettings `yaml:"tts"`
	LLM      LogSettings `yaml:"llm"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database and retention settings.
type DBConfig struct {
	Path        string   `yaml:"path"`
	AudioMaxAge Duration `yaml:"audio_max_age"`
	EventMaxAge Duration `yaml:"event_max_age"`
}

// RequestConfig holds outbound HTTP settings.
type RequestConfig struct {
	Retries       int           `yaml:"retries"`
	Timeout       Duration      `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Backoff       BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// GeofenceConfig holds trigger classification thresholds.
type GeofenceConfig struct {
	NextK                int      `yaml:"next_k"`
	AccuracyClampMax     Distance `yaml:"accuracy_clamp_max"`
	ExitHysteresis       Distance `yaml:"exit_hysteresis"`
	ConsecutiveInside    int      `yaml:"consecutive_inside"`
	Cooldown             Duration `yaml:"cooldown"`
	DefaultRadius        Distance `yaml:"default_radius"`
	ResetOnVisitedChange bool     `yaml:"reset_on_visited_change"`
}

// LocationConfig holds settings for the position sources.
type LocationConfig struct {
	Mode         string   `yaml:"mode"` // "real", "demo"
	GPSDAddress  string   `yaml:"gpsd_address"`
	Throttle     Duration `yaml:"throttle"`
	HighAccuracy bool     `yaml:"high_accuracy"`
	MaximumAge   Duration `yaml:"maximum_age"`
	Timeout      Duration `yaml:"timeout"`
	RetryDelay   Duration `yaml:"retry_delay"` // reopen a closed gpsd stream; 0 disables
	SimStep      Duration `yaml:"sim_step"`
	DemoDelay    Duration `yaml:"demo_delay"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	Output             string   `yaml:"output"` // "speaker", "silent"
	Format             string   `yaml:"format"`
	DuckVolume         float64  `yaml:"duck_volume"`
	FadeDuration       Duration `yaml:"fade_duration"`
	FrameInterval      Duration `yaml:"frame_interval"`
	PrewarmAhead       int      `yaml:"prewarm_ahead"`
	PrewarmConcurrency int      `yaml:"prewarm_concurrency"`
	SpeechFilter       bool     `yaml:"speech_filter"`
	LowCutoff          float64  `yaml:"low_cutoff"`
	HighCutoff         float64  `yaml:"high_cutoff"`
	Placeholder        string   `yaml:"placeholder"` // clip played when synthesis fails; empty disables
}

// NarrationTTSConfig holds settings for the narration endpoint.
type NarrationTTSConfig struct {
	URL     string   `yaml:"url"`
	Key     string   `yaml:"key"`
	Timeout Duration `yaml:"timeout"`
}

// FishAudioConfig holds settings for Fish Audio TTS.
type FishAudioConfig struct {
	Key   string `yaml:"key"`
	Model string `yaml:"model"` // Model ID (e.g. "s1")
}

// EdgeTTSConfig holds settings for Edge TTS.
type EdgeTTSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	Engines   []string           `yaml:"engines"` // failover order
	Narration NarrationTTSConfig `yaml:"narration"`
	FishAudio FishAudioConfig    `yaml:"fish_audio"`
	EdgeTTS   EdgeTTSConfig      `yaml:"edge_tts"`
}

// GeminiConfig holds settings for Google Gemini.
type GeminiConfig struct {
	Key   string `yaml:"key"`
	Model string `yaml:"model"`
}

// OpenRouterConfig holds settings for the OpenRouter chat API.
type OpenRouterConfig struct {
	Key       string   `yaml:"key"`
	Model     string   `yaml:"model"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

// LLMConfig holds settings for question answering and transcription.
type LLMConfig struct {
	Provider   string           `yaml:"provider"` // "gemini", "openrouter"
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	Restore    bool   `yaml:"restore"`
	VoiceStyle string `yaml:"voice_style"` // empty uses the tour default
	Lang       string `yaml:"lang"`

	// Breadcrumb records the position in the walk event log every time the
	// walker covers this distance. Zero disables it.
	Breadcrumb Distance `yaml:"breadcrumb"`
}

// TourConfig locates the tour definition.
type TourConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1931",
		},
		Log: LogConfig{
			Server:   LogSettings{Path: "./logs/server.log", Level: "INFO"},
			Requests: LogSettings{Path: "./logs/requests.log", Level: "INFO"},
			Events:   LogSettings{Path: "./logs/events.log", Level: "INFO"},
			TTS:      LogSettings{Path: "./logs/tts.log", Level: "INFO"},
			LLM:      LogSettings{Path: "./logs/llm.log", Level: "INFO"},
		},
		DB: DBConfig{
			Path:        "./data/odysseywalk.db",
			AudioMaxAge: Duration(30 * Day),
			EventMaxAge: Duration(90 * Day),
		},
		Request: RequestConfig{
			Retries:       3,
			Timeout:       Duration(60 * time.Second),
			RatePerSecond: 5,
			Burst:         2,
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Geofence: GeofenceConfig{
			NextK:             3,
			AccuracyClampMax:  Distance(30),
			ExitHysteresis:    Distance(5),
			ConsecutiveInside: 1,
			Cooldown:          Duration(60 * time.Second),
			DefaultRadius:     Distance(35),
		},
		Location: LocationConfig{
			Mode:         "real",
			GPSDAddress:  "localhost:2947",
			Throttle:     Duration(2 * time.Second),
			HighAccuracy: true,
			MaximumAge:   Duration(5 * time.Second),
			Timeout:      Duration(10 * time.Second),
			RetryDelay:   Duration(5 * time.Second),
			SimStep:      Duration(3 * time.Second),
			DemoDelay:    Duration(8 * time.Second),
		},
		Audio: AudioConfig{
			Output:             "speaker",
			Format:             "mp3",
			DuckVolume:         0.1,
			FadeDuration:       Duration(200 * time.Millisecond),
			FrameInterval:      Duration(16 * time.Millisecond),
			PrewarmAhead:       2,
			PrewarmConcurrency: 2,
			LowCutoff:          300,
			HighCutoff:         3400,
		},
		TTS: TTSConfig{
			Engines: []string{"narration", "fish-audio", "edge-tts"},
			Narration: NarrationTTSConfig{
				Timeout: Duration(15 * time.Second),
			},
			FishAudio: FishAudioConfig{
				Model: "s1",
			},
			EdgeTTS: EdgeTTSConfig{
				Enabled: true,
			},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Gemini: GeminiConfig{
				Model: "gemini-2.5-flash-lite",
			},
			OpenRouter: OpenRouterConfig{
				Model:     "openai/gpt-4o-mini",
				MaxTokens: 150,
				Timeout:   Duration(12 * time.Second),
			},
		},
		Session: SessionConfig{
			Restore:    true,
			Breadcrumb: Distance(250),
		},
		Tour: TourConfig{
			Path: "./data/tour.json",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk (to preserve user formatting and comments).
// A .env file in the working directory is loaded first; existing env vars win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Load from Env if empty (as a fallback, but do NOT save back to disk)
	applyEnv(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&cfg.TTS.Narration.URL, "NARRATION_TTS_URL")
	fill(&cfg.TTS.Narration.Key, "NARRATION_TTS_KEY")
	fill(&cfg.TTS.FishAudio.Key, "FISH_AUDIO_API_KEY")
	fill(&cfg.LLM.Gemini.Key, "GEMINI_API_KEY")
	fill(&cfg.LLM.OpenRouter.Key, "OPENROUTER_API_KEY")
	if addr := os.Getenv("ODYSSEY_GPSD_ADDR"); addr != "" {
		cfg.Location.GPSDAddress = addr
	}
}

// expandPaths resolves $VAR references in file paths.
func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.DB.Path, &cfg.Tour.Path, &cfg.Audio.Placeholder,
		&cfg.Log.Server.Path, &cfg.Log.Requests.Path, &cfg.Log.Events.Path, &cfg.Log.TTS.Path, &cfg.Log.LLM.Path,
	} {
		*p = os.ExpandEnv(*p)
	}
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Location.Mode {
	case "real", "demo":
	default:
		return fmt.Errorf("invalid location.mode %q: must be real or demo", c.Location.Mode)
	}
	switch c.Audio.Output {
	case "speaker", "silent":
	default:
		return fmt.Errorf("invalid audio.output %q: must be speaker or silent", c.Audio.Output)
	}
	if c.Audio.DuckVolume < 0 || c.Audio.DuckVolume > 1 {
		return fmt.Errorf("invalid audio.duck_volume %.2f: must be within [0, 1]", c.Audio.DuckVolume)
	}
	if c.Geofence.NextK < 1 {
		return fmt.Errorf("invalid geofence.next_k %d: must be at least 1", c.Geofence.NextK)
	}
	if c.Session.Lang != "" && !isValidLang(c.Session.Lang) {
		return fmt.Errorf("invalid session.lang '%s': must be a two-letter code (e.g. 'en', 'fr')", c.Session.Lang)
	}
	return nil
}

func isValidLang(s string) bool {
	matched, _ := regexp.MatchString(`^[a-z]{2}$`, s)
	return matched
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Odysseywalk Configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), ft (feet)
# Secrets may be left empty and supplied through .env or the environment.

`)
	data = append(header, data...)

	// Inject comments for Enum fields
	reEngines := regexp.MustCompile(`(?m)^(\s+)engines:`)
	data = reEngines.ReplaceAll(data, []byte("${1}# Options (failover order): narration, fish-audio, edge-tts\n${1}engines:"))

	reMode := regexp.MustCompile(`(?m)^(\s+)mode:`)
	data = reMode.ReplaceAll(data, []byte("${1}# Options: real, demo\n${1}mode:"))

	reOutput := regexp.MustCompile(`(?m)^(\s+)output:`)
	data = reOutput.ReplaceAll(data, []byte("${1}# Options: speaker, silent\n${1}output:"))

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: gemini, openrouter\n${1}provider:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
