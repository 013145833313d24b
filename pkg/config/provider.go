package config

import (
	"context"
	"strconv"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/store"
)

// Provider merges the static file config with user choices persisted at
// runtime (voice, language, location mode).
type Provider interface {
	VoiceStyle(ctx context.Context, fallback model.VoiceStyle) model.VoiceStyle
	Lang(ctx context.Context, fallback model.Lang) model.Lang
	Mode(ctx context.Context) model.Mode
	DuckVolume(ctx context.Context) float64

	SetVoice(ctx context.Context, style model.VoiceStyle, lang model.Lang) error
	SetMode(ctx context.Context, mode model.Mode) error

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. A nil store serves the file config only.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{base: base, store: st}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// VoiceStyle prefers the persisted choice, then the config file, then fallback
// (usually the tour default).
func (p *UnifiedProvider) VoiceStyle(ctx context.Context, fallback model.VoiceStyle) model.VoiceStyle {
	if v := p.getString(ctx, KeyVoiceStyle, p.base.Session.VoiceStyle); v != "" {
		return model.ParseVoiceStyle(v)
	}
	return fallback
}

func (p *UnifiedProvider) Lang(ctx context.Context, fallback model.Lang) model.Lang {
	if v := p.getString(ctx, KeyLang, p.base.Session.Lang); v != "" {
		return model.ParseLang(v)
	}
	return fallback
}

func (p *UnifiedProvider) Mode(ctx context.Context) model.Mode {
	if p.getString(ctx, KeyMode, p.base.Location.Mode) == string(model.ModeDemo) {
		return model.ModeDemo
	}
	return model.ModeReal
}

func (p *UnifiedProvider) DuckVolume(ctx context.Context) float64 {
	v := p.getFloat64(ctx, KeyDuckVolume, p.base.Audio.DuckVolume)
	if v < 0 || v > 1 {
		return p.base.Audio.DuckVolume
	}
	return v
}

func (p *UnifiedProvider) SetVoice(ctx context.Context, style model.VoiceStyle, lang model.Lang) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.SetState(ctx, KeyVoiceStyle, string(style)); err != nil {
		return err
	}
	return p.store.SetState(ctx, KeyLang, string(lang))
}

func (p *UnifiedProvider) SetMode(ctx context.Context, mode model.Mode) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, KeyMode, string(mode))
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}
