package model

import (
	"encoding/json"
	"fmt"
)

// ScriptKind tags the Script variant.
type ScriptKind string

const (
	ScriptSingle  ScriptKind = "single"
	ScriptByStyle ScriptKind = "byStyle"
)

// Script is narration content for a POI: either one text for every style or one
// text per voice style.
type Script struct {
	Kind    ScriptKind            `json:"kind"`
	Text    string                `json:"text,omitempty"`
	ByStyle map[VoiceStyle]string `json:"by_style,omitempty"`
}

// SingleScript builds a single-text script.
func SingleScript(text string) Script {
	return Script{Kind: ScriptSingle, Text: text}
}

// StyledScript builds a per-style script.
func StyledScript(byStyle map[VoiceStyle]string) Script {
	return Script{Kind: ScriptByStyle, ByStyle: byStyle}
}

// styleFallbackOrder is tried after the preferred style.
var styleFallbackOrder = []VoiceStyle{StyleFriendly, StyleHistorian, StyleFunny}

// ResolveNarrationText picks the text to narrate.
// Precedence: single text, preferred style, then friendly, historian, funny.
func ResolveNarrationText(s Script, preferred VoiceStyle) string {
	if s.Kind == ScriptSingle && s.Text != "" {
		return s.Text
	}
	if s.Kind == "" && s.Text != "" {
		return s.Text
	}
	if preferred != "" {
		if t := s.ByStyle[preferred]; t != "" {
			return t
		}
	}
	for _, style := range styleFallbackOrder {
		if t := s.ByStyle[style]; t != "" {
			return t
		}
	}
	return ""
}

// UnmarshalJSON accepts the tagged form, a bare string, or a bare style map.
func (s *Script) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = SingleScript(text)
		return nil
	}

	type tagged Script
	var t tagged
	if err := json.Unmarshal(data, &t); err == nil && (t.Kind != "" || t.Text != "" || len(t.ByStyle) > 0) {
		*s = Script(t)
		if s.Kind == "" {
			if s.Text != "" {
				s.Kind = ScriptSingle
			} else {
				s.Kind = ScriptByStyle
			}
		}
		return nil
	}

	var byStyle map[VoiceStyle]string
	if err := json.Unmarshal(data, &byStyle); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	*s = StyledScript(byStyle)
	return nil
}
