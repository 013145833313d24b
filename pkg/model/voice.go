package model

import "strings"

// VoiceStyle selects the narrator persona.
type VoiceStyle string

const (
	StyleFriendly  VoiceStyle = "friendly"
	StyleHistorian VoiceStyle = "historian"
	StyleFunny     VoiceStyle = "funny"
)

// Lang is a narration language code.
type Lang string

const (
	LangEN Lang = "en"
	LangFR Lang = "fr"
)

// ParseVoiceStyle maps free text to a known style, defaulting to friendly.
func ParseVoiceStyle(s string) VoiceStyle {
	switch VoiceStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleHistorian:
		return StyleHistorian
	case StyleFunny:
		return StyleFunny
	default:
		return StyleFriendly
	}
}

// ParseLang maps free text to a known language, defaulting to English.
func ParseLang(s string) Lang {
	if Lang(strings.ToLower(strings.TrimSpace(s))) == LangFR {
		return LangFR
	}
	return LangEN
}

// LanguageName returns the English name used in prompts.
func (l Lang) LanguageName() string {
	if l == LangFR {
		return "French"
	}
	return "English"
}
