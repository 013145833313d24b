package edgetts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odysseywalk/pkg/model"
	"odysseywalk/pkg/tts"
)

func TestBuildSSML(t *testing.T) {
	tests := []struct {
		name  string
		lang  model.Lang
		style model.VoiceStyle
		text  string
		want  []string
	}{
		{
			name:  "english guide",
			lang:  model.LangEN,
			style: model.StyleFriendly,
			text:  "Welcome to the Pantheon",
			want:  []string{"xml:lang='en-US'", "Welcome to the Pantheon"},
		},
		{
			name:  "french stop name keeps its apostrophe escaped",
			lang:  model.LangFR,
			style: model.StyleHistorian,
			text:  "L'église Saint-Étienne-du-Mont",
			want:  []string{"xml:lang='fr-FR'", "L&apos;église Saint-Étienne-du-Mont"},
		},
		{
			name:  "markup in a script is spoken, not parsed",
			lang:  model.LangEN,
			style: model.StyleFunny,
			text:  `Café <b>"Procope"</b> & friends`,
			want:  []string{"Café &lt;b&gt;&quot;Procope&quot;&lt;/b&gt; &amp; friends"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voice := tts.EdgeVoices.Resolve(tt.lang, tt.style)
			got := buildSSML(voice, tts.EdgeLocale(tt.lang), tt.text)
			assert.Contains(t, got, "<voice name='"+voice+"'>")
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}
