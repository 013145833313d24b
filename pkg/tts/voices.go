package tts

import "odysseywalk/pkg/model"

// VoiceTable maps (lang, style) to a backend voice id.
type VoiceTable map[model.Lang]map[model.VoiceStyle]string

// Resolve picks the voice for lang and style, falling back to the friendly voice of
// the same language and then to English friendly.
func (t VoiceTable) Resolve(lang model.Lang, style model.VoiceStyle) string {
	if byLang, ok := t[lang]; ok {
		if v := byLang[style]; v != "" {
			return v
		}
		if v := byLang[model.StyleFriendly]; v != "" {
			return v
		}
	}
	return t[model.LangEN][model.StyleFriendly]
}

// NarrationVoices are the hosted narration endpoint's voice ids.
var NarrationVoices = VoiceTable{
	model.LangEN: {
		model.StyleFriendly:  "YTpq7expH9539ERJ",
		model.StyleHistorian: "KWJiFWu2O9nMPYcR",
		model.StyleFunny:     "LFZvm12tW_z0xfGo",
	},
	model.LangFR: {
		model.StyleFriendly:  "b35yykvVppLXyw_l",
		model.StyleHistorian: "axlOaUiFyOZhy4nv",
		model.StyleFunny:     "axlOaUiFyOZhy4nv",
	},
}

// EdgeVoices are Microsoft neural voices used by the read-aloud fallback.
var EdgeVoices = VoiceTable{
	model.LangEN: {
		model.StyleFriendly:  "en-US-AvaMultilingualNeural",
		model.StyleHistorian: "en-GB-RyanNeural",
		model.StyleFunny:     "en-US-AndrewMultilingualNeural",
	},
	model.LangFR: {
		model.StyleFriendly:  "fr-FR-VivienneMultilingualNeural",
		model.StyleHistorian: "fr-FR-HenriNeural",
		model.StyleFunny:     "fr-FR-RemyMultilingualNeural",
	},
}

// EdgeLocale returns the xml:lang used in Edge SSML.
func EdgeLocale(lang model.Lang) string {
	if lang == model.LangFR {
		return "fr-FR"
	}
	return "en-US"
}
