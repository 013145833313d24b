// Package edgetts speaks through the Microsoft Edge read-aloud websocket.
package edgetts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tracker"
	"odysseywalk/pkg/tts"
)

const providerName = "edgetts"

// Config holds the handshake parameters. Empty fields are read from the
// EDGE_TTS_* environment variables.
type Config struct {
	BaseURL            string
	Origin             string
	UserAgent          string
	TrustedClientToken string
	SecMSGecVersion    string
	Voices             tts.VoiceTable
}

// ConfigFromEnv fills empty fields from the environment.
func (c Config) ConfigFromEnv() Config {
	fill := func(v *string, key string) {
		if *v == "" {
			*v = os.Getenv(key)
		}
	}
	fill(&c.BaseURL, "EDGE_TTS_BASE_URL")
	fill(&c.Origin, "EDGE_TTS_ORIGIN")
	fill(&c.UserAgent, "EDGE_TTS_USER_AGENT")
	fill(&c.TrustedClientToken, "EDGE_TTS_TRUSTED_CLIENT_TOKEN")
	fill(&c.SecMSGecVersion, "EDGE_TTS_SEC_MS_GEC_VERSION")
	return c
}

// Configured reports whether every handshake field is present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.Origin != "" && c.UserAgent != "" &&
		c.TrustedClientToken != "" && c.SecMSGecVersion != ""
}

// Provider implements tts.Synthesizer for Microsoft Edge TTS.
type Provider struct {
	cfg     Config
	tracker *tracker.Tracker
	now     func() time.Time
}

// NewProvider creates a new Edge TTS provider.
func NewProvider(cfg Config, t *tracker.Tracker) *Provider {
	if cfg.Voices == nil {
		cfg.Voices = tts.EdgeVoices
	}
	return &Provider{cfg: cfg.ConfigFromEnv(), tracker: t, now: time.Now}
}

func (p *Provider) Name() string { return providerName }

// Synthesize returns mp3 audio from Edge TTS.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if !p.cfg.Configured() {
		return tts.Audio{}, tts.NewFatalError(503, "edge tts: handshake parameters missing")
	}
	text := tts.PrepareText(req.Text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	lang := model.ParseLang(string(req.Lang))
	voice := p.cfg.Voices.Resolve(lang, req.VoiceStyle)

	conn, err := p.dial(ctx)
	if err != nil {
		p.trackFailure()
		tts.Log(providerName, req, 0, err)
		return tts.Audio{}, err
	}
	defer conn.Close()

	if err := p.sendConfig(conn); err != nil {
		return tts.Audio{}, err
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	ssml := buildSSML(voice, tts.EdgeLocale(lang), text)
	if err := p.sendSSML(conn, ssml, requestID); err != nil {
		return tts.Audio{}, err
	}

	var buf bytes.Buffer
	if err := p.consumeResponses(ctx, conn, &buf); err != nil {
		p.trackFailure()
		tts.Log(providerName, req, 0, err)
		return tts.Audio{}, err
	}

	audio := tts.Audio{Data: buf.Bytes(), Format: "mp3"}
	if err := tts.VerifyAudio(audio); err != nil {
		p.trackFailure()
		tts.Log(providerName, req, 200, err)
		return tts.Audio{}, err
	}

	if p.tracker != nil {
		p.tracker.TrackAPISuccess(providerName)
	}
	tts.Log(providerName, req, 200, nil)
	return audio, nil
}

func (p *Provider) trackFailure() {
	if p.tracker != nil {
		p.tracker.TrackAPIFailure(providerName)
	}
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Origin", p.cfg.Origin)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("User-Agent", p.cfg.UserAgent)
	header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	muid := strings.ReplaceAll(uuid.New().String(), "-", "")
	header.Set("Cookie", fmt.Sprintf("muid=%s", muid))

	token := p.generateSecMSGec()
	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		p.cfg.BaseURL, p.cfg.TrustedClientToken, token, p.cfg.SecMSGecVersion)

	var dialErr error
	for i := 0; i < 3; i++ {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		dialErr = err
		if resp != nil {
			slog.Warn("EdgeTTS: handshake failure", "status", resp.Status, "status_code", resp.StatusCode)
			if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
				return nil, tts.NewFatalError(resp.StatusCode, fmt.Sprintf("edge tts handshake rejected: %s", resp.Status))
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("websocket dial failed after retries: %w", dialErr)
}

// generateSecMSGec derives the rolling Sec-MS-GEC token: Windows file-time ticks
// rounded down to five minutes, concatenated with the client token and hashed.
func (p *Provider) generateSecMSGec() string {
	ticks := float64(p.now().Unix()) + 11644473600
	ticks -= float64(int64(ticks) % 300)
	ticks *= 1e7

	hash := sha256.Sum256([]byte(fmt.Sprintf("%.0f%s", ticks, p.cfg.TrustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func (p *Provider) sendConfig(conn *websocket.Conn) error {
	configMsg := "Content-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n{\"context\":{\"synthesis\":{\"audio\":{\"metadataoptions\":{\"sentenceBoundaryEnabled\":\"false\",\"wordBoundaryEnabled\":\"false\"},\"outputFormat\":\"audio-24khz-48kbitrate-mono-mp3\"}}}}"
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configMsg)); err != nil {
		return fmt.Errorf("failed to send speech.config: %w", err)
	}
	return nil
}

func (p *Provider) sendSSML(conn *websocket.Conn, ssml, requestID string) error {
	ssmlMsg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nPath:ssml\r\n\r\n%s", requestID, ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ssmlMsg)); err != nil {
		return fmt.Errorf("failed to send ssml: %w", err)
	}
	return nil
}

func buildSSML(voice, locale, text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	escapedText := replacer.Replace(text)
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'><voice name='%s'>%s</voice></speak>", locale, voice, escapedText)
}

var errNoTurnEnd = errors.New("edge tts: connection closed before turn.end")

func (p *Provider) consumeResponses(ctx context.Context, conn *websocket.Conn, buf *bytes.Buffer) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errNoTurnEnd
			}
			return fmt.Errorf("read message failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return nil
			}
		case websocket.BinaryMessage:
			handleBinaryMessage(data, buf)
		}
	}
}

// handleBinaryMessage strips the two-byte big-endian header length and the
// header itself, keeping the audio payload.
func handleBinaryMessage(data []byte, buf *bytes.Buffer) {
	if len(data) < 2 {
		return
	}
	headerLength := int(uint16(data[0])<<8 | uint16(data[1]))
	if len(data) < 2+headerLength {
		return
	}
	buf.Write(data[2+headerLength:])
}
