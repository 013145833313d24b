package config

// Persistent state keys (Registry)
const (
	KeyVoiceStyle = "voice_style"
	KeyLang       = "lang"
	KeyMode       = "location_mode"
	KeyDuckVolume = "duck_volume"
)
