package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odysseywalk/pkg/model"
)

func TestCacheKeys(t *testing.T) {
	a := NarrationKey("poi-1", model.StyleFriendly, model.LangEN, "v1")
	b := NarrationKey("poi-1", model.StyleFriendly, model.LangEN, "v2")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "poi-1|friendly|en|v1", a.String())

	i1 := TextKey(PurposeIntro, "Welcome", model.StyleFriendly, model.LangEN)
	i2 := TextKey(PurposeIntro, "Welcome", model.StyleFriendly, model.LangEN)
	o1 := TextKey(PurposeOutro, "Welcome", model.StyleFriendly, model.LangEN)
	fr := TextKey(PurposeIntro, "Welcome", model.StyleFriendly, model.LangFR)
	assert.Equal(t, i1, i2)
	assert.NotEqual(t, i1, o1)
	assert.NotEqual(t, i1, fr)
	assert.Contains(t, i1.POIID, "intro:")
	assert.Empty(t, i1.ScriptVersion)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	k := NarrationKey("poi-1", model.StyleFunny, model.LangFR, "")

	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Put(k, Clip{Data: []byte("x"), Format: "mp3"})
	got, ok := c.Get(k)
	assert.True(t, ok)
	assert.Equal(t, "x", string(got.Data))
	assert.Equal(t, 1, c.Len())

	c.Delete(k)
	assert.Equal(t, 0, c.Len())

	c.Put(k, Clip{})
	c.Put(NarrationKey("poi-2", model.StyleFunny, model.LangFR, ""), Clip{})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
