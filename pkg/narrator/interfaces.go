package narrator

import (
	"context"

	"odysseywalk/pkg/audio"
	"odysseywalk/pkg/model"
)

// Audio is the playback surface the narrator drives. *audio.Controller
// implements it.
type Audio interface {
	PlayNarration(ctx context.Context, poiID, text string, opts audio.NarrationOptions) audio.Result
	PlayAnswerStream(ctx context.Context, text string) audio.Result
	PlayIntro(ctx context.Context, text string) audio.Result
	PlayOutro(ctx context.Context, text string) audio.Result
	InterruptForListening(ctx context.Context)
	EndInteraction()
	Pause()
	Resume()
	Stop()
	ClearAudioCache()
	CacheLen() int
	Prewarm(ctx context.Context, items []audio.PrewarmItem) int
	SetVoice(style model.VoiceStyle, lang model.Lang)
	State() model.AudioState
	History() []audio.Transition
	Subscribe(fn func(model.AudioState)) func()
}

// permissionNotifier is implemented by location providers that can report a
// denied permission.
type permissionNotifier interface {
	SetPermissionCallback(f func())
}
