// Package narration synthesizes speech through a hosted narration endpoint that
// answers with WAV audio, either raw or wrapped in JSON.
package narration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/request"
	"odysseywalk/pkg/tts"
)

const providerName = "narration"

// Config configures the endpoint.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Voices  tts.VoiceTable
}

// Provider implements tts.Synthesizer.
type Provider struct {
	client *request.Client
	cfg    Config
}

// NewProvider creates a narration provider on a shared request client.
func NewProvider(client *request.Client, cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Voices == nil {
		cfg.Voices = tts.NarrationVoices
	}
	return &Provider{client: client, cfg: cfg}
}

func (p *Provider) Name() string { return providerName }

// Configured reports whether both URL and key are set.
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.URL) != "" && strings.TrimSpace(p.cfg.APIKey) != ""
}

type requestBody struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id"`
	OutputFormat string `json:"output_format"`
	OnlyAudio    bool   `json:"only_audio"`
	JSONConfig   string `json:"json_config,omitempty"`
}

// Synthesize posts the text and returns WAV bytes.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if !p.Configured() {
		return tts.Audio{}, tts.NewFatalError(503, "narration endpoint not configured")
	}
	text := tts.PrepareText(req.Text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}

	lang := model.ParseLang(string(req.Lang))
	body := requestBody{
		Text:         text,
		VoiceID:      p.cfg.Voices.Resolve(lang, req.VoiceStyle),
		OutputFormat: "wav",
		OnlyAudio:    true,
	}
	if lang != model.LangEN {
		rules, _ := json.Marshal(map[string]string{"rewrite_rules": string(lang)})
		body.JSONConfig = string(rules)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.client.PostJSON(ctx, p.cfg.URL, body, request.Options{
		Headers:     map[string]string{"x-api-key": p.cfg.APIKey},
		MaxAttempts: 2,
	})
	if err != nil {
		err = classify(err)
		tts.Log(providerName, req, statusOf(err), err)
		return tts.Audio{}, err
	}

	var data []byte
	if strings.Contains(resp.ContentType, "application/json") {
		data, err = decodeJSONAudio(resp.Body)
		if err != nil {
			tts.Log(providerName, req, resp.StatusCode, err)
			return tts.Audio{}, err
		}
	} else {
		data = resp.Body
	}
	if len(data) == 0 {
		err := &tts.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: "empty audio"}
		tts.Log(providerName, req, resp.StatusCode, err)
		return tts.Audio{}, err
	}

	tts.Log(providerName, req, resp.StatusCode, nil)
	return tts.Audio{Data: data, Format: "wav"}, nil
}

func classify(err error) error {
	var se *request.StatusError
	if !errors.As(err, &se) {
		return err
	}
	msg := strings.TrimSpace(string(se.Body))
	switch se.StatusCode {
	case 401:
		msg += " (check the narration API key)"
	case 404:
		msg += " (endpoint not found, check the narration URL)"
	}
	return tts.ClassifyStatus(providerName, se.StatusCode, msg)
}

func statusOf(err error) int {
	var fe *tts.FatalError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	var ae *tts.APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

type streamMessage struct {
	Type    string `json:"type"`
	Audio   string `json:"audio"`
	Message string `json:"message"`
}

type singleMessage struct {
	RawData string `json:"raw_data"`
	Audio   string `json:"audio"`
	Error   string `json:"error"`
}

// decodeJSONAudio accepts either newline-delimited {type, audio} messages whose
// base64 chunks are concatenated, or a single {raw_data|audio|error} object.
func decodeJSONAudio(body []byte) ([]byte, error) {
	var b64 strings.Builder
	streamOK := true

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var msg streamMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			streamOK = false
			break
		}
		switch msg.Type {
		case "audio":
			b64.WriteString(msg.Audio)
		case "error":
			m := msg.Message
			if m == "" {
				m = line
			}
			return nil, &tts.APIError{Provider: providerName, StatusCode: 502, Message: m}
		}
	}
	if sc.Err() != nil {
		streamOK = false
	}

	if streamOK && b64.Len() > 0 {
		return decodeBase64(b64.String())
	}

	var single singleMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &single); err != nil {
		if streamOK {
			return nil, &tts.APIError{Provider: providerName, StatusCode: 502, Message: "no audio in JSON stream"}
		}
		return nil, fmt.Errorf("narration: decode response: %w", err)
	}
	if single.Error != "" {
		return nil, &tts.APIError{Provider: providerName, StatusCode: 502, Message: single.Error}
	}
	enc := single.RawData
	if enc == "" {
		enc = single.Audio
	}
	if enc == "" {
		return nil, &tts.APIError{Provider: providerName, StatusCode: 502, Message: "no audio"}
	}
	return decodeBase64(enc)
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("narration: decode audio: %w", err)
	}
	return data, nil
}
