// Package openrouter answers questions through the OpenRouter chat
// completions API.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"odysseywalk/pkg/config"
	"odysseywalk/pkg/llm"
	"odysseywalk/pkg/llm/prompts"
	"odysseywalk/pkg/request"
)

const (
	providerName     = "openrouter"
	defaultURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel     = "openai/gpt-4o-mini"
	defaultMaxTokens = 150
	defaultTimeout   = 12 * time.Second
	referer          = "https://github.com/odysseywalk/odysseywalk"
)

// Client implements llm.Answerer.
type Client struct {
	rc        *request.Client
	prompts   *prompts.Manager
	url       string
	key       string
	model     string
	maxTokens int
	timeout   time.Duration
	logPath   string
}

// Options holds wiring that does not come from the config file.
type Options struct {
	Prompts *prompts.Manager
	LogPath string
	URL     string
}

// NewClient creates a client. Without a key every call returns
// llm.ErrNotConfigured.
func NewClient(cfg config.OpenRouterConfig, rc *request.Client, opts Options) (*Client, error) {
	pm := opts.Prompts
	if pm == nil {
		var err error
		if pm, err = prompts.NewManager(""); err != nil {
			return nil, err
		}
	}
	c := &Client{
		rc:        rc,
		prompts:   pm,
		url:       opts.URL,
		key:       cfg.Key,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout.Std(),
		logPath:   opts.LogPath,
	}
	if c.url == "" {
		c.url = defaultURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c, nil
}

// Name identifies the provider in logs and failover.
func (c *Client) Name() string { return providerName }

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool { return c.key != "" && c.rc != nil }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Answer implements llm.Answerer.
func (c *Client) Answer(ctx context.Context, req llm.AnswerRequest) (string, error) {
	if !c.Configured() {
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

	msgs := []message{{Role: "system", Content: system}}
	for _, prev := range req.Recent() {
		msgs = append(msgs, message{Role: "user", Content: prev})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Question})

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.rc.PostJSON(ctx, c.url, chatRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	}, request.Options{
		Headers: map[string]string{
			"Authorization": "Bearer " + c.key,
			"HTTP-Referer":  referer,
			"X-Title":       "Odysseywalk",
		},
		MaxAttempts: 2,
	})
	prompt := system + "\n\nQ: " + req.Question
	if err != nil {
		err = wrapError(err)
		c.done(prompt, "", err)
		return "", err
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body, &cr); err != nil {
		err = &llm.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		c.done(prompt, "", err)
		return "", err
	}
	var text string
	if len(cr.Choices) > 0 {
		text = strings.TrimSpace(cr.Choices[0].Message.Content)
	}
	if text == "" {
		c.done(prompt, "", llm.ErrEmptyAnswer)
		return "", llm.ErrEmptyAnswer
	}
	c.done(prompt, text, nil)
	return text, nil
}

// done logs the exchange. request.Client already tracks call outcomes.
func (c *Client) done(prompt, response string, err error) {
	llm.LogExchange(c.logPath, providerName, "answer", prompt, response, err)
}

func wrapError(err error) error {
	var se *request.StatusError
	if errors.As(err, &se) {
		return &llm.ProviderError{Provider: providerName, StatusCode: se.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &llm.ProviderError{Provider: providerName, Err: err}
}
