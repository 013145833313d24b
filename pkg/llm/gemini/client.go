// Package gemini answers and transcribes walkers' questions with Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"odysseywalk/pkg/config"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/llm/prompts"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tracker"
)

const (
	providerName   = "gemini"
	defaultModel   = "gemini-2.5-flash-lite"
	maxAnswerToken = 150
)

// Options holds wiring that does not come from the config file.
type Options struct {
	Prompts *prompts.Manager
	Tracker *tracker.Tracker
	LogPath string
	// BaseURL overrides the API endpoint.
	BaseURL string
	Timeout time.Duration
}

// Client implements llm.Answerer and llm.Transcriber for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	modelName   string
	prompts     *prompts.Manager
	tracker     *tracker.Tracker
	logPath     string
	baseURL     string
	timeout     time.Duration

	mu sync.RWMutex
}

// NewClient creates a new Gemini client. Without a key the client exists but
// every call returns llm.ErrNotConfigured.
func NewClient(cfg config.GeminiConfig, opts Options) (*Client, error) {
	pm := opts.Prompts
	if pm == nil {
		var err error
		if pm, err = prompts.NewManager(""); err != nil {
			return nil, err
		}
	}
	c := &Client{
		prompts: pm,
		tracker: opts.Tracker,
		logPath: opts.LogPath,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}
	if c.timeout <= 0 {
		c.timeout = 12 * time.Second
	}
	if err := c.Configure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Configure updates the client with new settings.
func (c *Client) Configure(cfg config.GeminiConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modelName = cfg.Model
	if c.modelName == "" {
		c.modelName = defaultModel
	}

	if cfg.Key == "" {
		c.genaiClient = nil
		return nil
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.Key,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	c.genaiClient = client
	return nil
}

// Name identifies the provider in logs and failover.
func (c *Client) Name() string { return providerName }

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genaiClient != nil
}

func (c *Client) snapshot() (*genai.Client, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genaiClient, c.modelName
}

// Answer implements llm.Answerer.
func (c *Client) Answer(ctx context.Context, req llm.AnswerRequest) (string, error) {
	client, modelName := c.snapshot()
	if client == nil {
		return "", llm.ErrNotConfigured
	}

	system, err := c.prompts.Render(prompts.QASystem, prompts.QAData{
		POIName:    req.POIName,
		Script:     req.POIScript,
		Facts:      req.POIFacts,
		Lang:       req.Lang,
		VoiceStyle: req.VoiceStyle,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	var contents []*genai.Content
	for _, prev := range req.Recent() {
		contents = append(contents, genai.NewContentFromText(prev, genai.RoleUser))
	}
	contents = append(contents, genai.NewContentFromText(req.Question, genai.RoleUser))

	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   maxAnswerToken,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, modelName, contents, gc)
	text, err := c.finish("answer", system+"\n\nQ: "+req.Question, resp, err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Transcribe implements llm.Transcriber using audio input.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string, lang model.Lang) (string, error) {
	client, modelName := c.snapshot()
	if client == nil {
		return "", llm.ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", llm.ErrEmptyTranscript
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	instruction, err := c.prompts.Render(prompts.Transcribe, prompts.QAData{Lang: lang})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, modelName, contents, nil)
	text, err := c.finish("transcribe", instruction, resp, err)
	if err != nil {
		return "", err
	}
	text = llm.ParseTranscript(text)
	if text == "" {
		return "", llm.ErrEmptyTranscript
	}
	return text, nil
}

// finish extracts text, logs the exchange and records tracker stats.
func (c *Client) finish(name, prompt string, resp *genai.GenerateContentResponse, err error) (string, error) {
	if err != nil {
		err = wrapError(err)
		llm.LogExchange(c.logPath, providerName, name, prompt, "", err)
		c.track(false)
		return "", err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		llm.LogExchange(c.logPath, providerName, name, prompt, "", llm.ErrEmptyAnswer)
		c.track(false)
		return "", llm.ErrEmptyAnswer
	}
	llm.LogExchange(c.logPath, providerName, name, prompt, text, nil)
	c.track(true)
	return text, nil
}

func (c *Client) track(ok bool) {
	if c.tracker == nil {
		return
	}
	if ok {
		c.tracker.TrackAPISuccess(providerName)
	} else {
		c.tracker.TrackAPIFailure(providerName)
	}
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErrPtr.Code, Err: err}
	}
	return &llm.ProviderError{Provider: providerName, Err: err}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Validate checks that the configured model is available for the API key and
// logs the alternatives when it is not.
func (c *Client) Validate(ctx context.Context) error {
	client, modelName := c.snapshot()
	if client == nil {
		return llm.ErrNotConfigured
	}

	name := modelName
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	_, err := client.Models.Get(ctx, name, nil)
	if err == nil {
		slog.Debug("Gemini model validation success", "model", modelName)
		return nil
	}

	slog.Warn("Gemini model validation failed, fetching available models...", "model", modelName, "error", err)

	page, listErr := client.Models.List(ctx, nil)
	if listErr != nil {
		slog.Warn("Failed to list models for recovery", "error", listErr)
		return err
	}

	var available []string
	for {
		for _, m := range page.Items {
			if m != nil && strings.Contains(strings.ToLower(m.Name), "gemini") {
				available = append(available, m.Name)
			}
		}
		var nextErr error
		page, nextErr = page.Next(ctx)
		if nextErr != nil {
			if nextErr != iterator.Done {
				slog.Debug("Model listing stopped", "error", nextErr)
			}
			break
		}
	}
	slog.Error("Configured model not found", "configured", modelName, "available", strings.Join(available, ", "))
	return err
}
