package fishaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/request"
	"odysseywalk/pkg/tts"
)

const (
	apiURL       = "https://api.fish.audio/v1/tts"
	providerName = "fishaudio"
)

// Config holds the Fish Audio credentials and per-style reference voices.
type Config struct {
	APIKey string
	Model  string // e.g. "s1"
	Voices tts.VoiceTable
	URL    string // overrides the public endpoint
}

// Provider implements tts.Synthesizer for Fish Audio.
type Provider struct {
	client *request.Client
	cfg    Config
}

// NewProvider creates a new Fish Audio TTS provider.
func NewProvider(client *request.Client, cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = apiURL
	}
	return &Provider{client: client, cfg: cfg}
}

func (p *Provider) Name() string { return providerName }

// requestBody represents the JSON payload for Fish Audio TTS.
type requestBody struct {
	Text        string `json:"text"`
	ReferenceID string `json:"reference_id"`
	ModelID     string `json:"model,omitempty"`
	Format      string `json:"format"`
	Mp3Bitrate  int    `json:"mp3_bitrate,omitempty"`
	Latency     string `json:"latency,omitempty"`
}

// Synthesize generates mp3 speech for the request's style and language.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if p.cfg.APIKey == "" {
		return tts.Audio{}, tts.NewFatalError(401, "fish audio: no API key configured")
	}
	text := tts.PrepareText(req.Text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}

	vid := p.cfg.Voices.Resolve(model.ParseLang(string(req.Lang)), req.VoiceStyle)
	if vid == "" {
		return tts.Audio{}, tts.NewFatalError(400, "fish audio: no voice ID configured")
	}

	body := requestBody{
		Text:        text,
		ReferenceID: vid,
		ModelID:     p.cfg.Model,
		Format:      "mp3",
		Mp3Bitrate:  128,
		Latency:     "normal",
	}

	resp, err := p.client.PostJSON(ctx, p.cfg.URL, body, request.Options{
		Headers: map[string]string{"Authorization": "Bearer " + p.cfg.APIKey},
	})
	if err != nil {
		var se *request.StatusError
		if errors.As(err, &se) {
			err = tts.ClassifyStatus(providerName, se.StatusCode, strings.TrimSpace(string(se.Body)))
		} else if ctx.Err() == nil {
			// retries exhausted on the network: let the chain move on
			err = tts.NewFatalError(500, fmt.Sprintf("fish audio failed: %v", err))
		}
		tts.Log(providerName, req, 0, err)
		return tts.Audio{}, err
	}

	audio := tts.Audio{Data: resp.Body, Format: "mp3"}
	if err := tts.VerifyAudio(audio); err != nil {
		tts.Log(providerName, req, resp.StatusCode, err)
		return tts.Audio{}, err
	}

	tts.Log(providerName, req, resp.StatusCode, nil)
	return audio, nil
}
