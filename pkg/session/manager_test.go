package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/db"
	"odysseywalk/pkg/model"
	"odysseywalk/pkg/store"
)

// MockStore for testing
type MockStore struct {
	Data map[string]string
}

func (m *MockStore) GetState(ctx context.Context, key string) (string, bool) {
	v, ok := m.Data[key]
	return v, ok
}

func (m *MockStore) SetState(ctx context.Context, key, value string) error {
	if m.Data == nil {
		m.Data = make(map[string]string)
	}
	m.Data[key] = value
	return nil
}

func (m *MockStore) DeleteState(ctx context.Context, key string) error {
	delete(m.Data, key)
	return nil
}

func TestManager_VisitedPersistence(t *testing.T) {
	ctx := context.Background()
	st := &MockStore{}
	m := NewManager(st, nil)

	s := m.Start(ctx, "paris-left-bank", model.ModeReal, model.StyleFriendly, model.LangEN)
	require.NotEmpty(t, s.SessionID)
	assert.Empty(t, s.VisitedPOIIDs)

	assert.True(t, m.MarkVisited(ctx, "pantheon"))
	assert.True(t, m.MarkVisited(ctx, "luxembourg"))
	assert.False(t, m.MarkVisited(ctx, "pantheon"), "visited set never duplicates")

	got := m.State()
	assert.Equal(t, []string{"pantheon", "luxembourg"}, got.VisitedPOIIDs)
	assert.Equal(t, "pantheon", got.ActivePOIID)

	var persisted model.SessionState
	require.NoError(t, json.Unmarshal([]byte(st.Data[StateKey]), &persisted))
	assert.Equal(t, got, persisted)

	// Visited returns a copy
	v := m.Visited()
	v.Add("sorbonne")
	assert.Equal(t, 2, m.Visited().Len())
}

func TestManager_ModeVoiceClear(t *testing.T) {
	ctx := context.Background()
	st := &MockStore{}
	m := NewManager(st, nil)
	m.Start(ctx, "t1", model.ModeReal, model.StyleFriendly, model.LangEN)

	m.SetMode(ctx, model.ModeDemo)
	m.SetVoice(ctx, model.StyleHistorian, model.LangFR)
	s := m.State()
	assert.Equal(t, model.ModeDemo, s.Mode)
	assert.Equal(t, model.StyleHistorian, s.VoiceStyle)
	assert.Equal(t, model.LangFR, s.Lang)

	m.Clear(ctx)
	_, ok := st.Data[StateKey]
	assert.False(t, ok)
	assert.Empty(t, m.State().SessionID)
}

func TestTryRestore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		persist  *model.SessionState
		raw      string
		tourID   string
		want     bool
		visited  int
		wantMode model.Mode
	}{
		{
			name:   "nothing persisted",
			tourID: "t1",
		},
		{
			name:     "same tour restored",
			persist:  &model.SessionState{SessionID: "s1", TourID: "t1", VisitedPOIIDs: []string{"a", "b", "a"}, Mode: model.ModeDemo},
			tourID:   "t1",
			want:     true,
			visited:  2,
			wantMode: model.ModeDemo,
		},
		{
			name:    "other tour ignored",
			persist: &model.SessionState{SessionID: "s1", TourID: "t2", VisitedPOIIDs: []string{"a"}},
			tourID:  "t1",
		},
		{
			name:   "corrupt state ignored",
			raw:    "{not json",
			tourID: "t1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &MockStore{Data: map[string]string{}}
			if tt.persist != nil {
				data, _ := json.Marshal(tt.persist)
				st.Data[StateKey] = string(data)
			}
			if tt.raw != "" {
				st.Data[StateKey] = tt.raw
			}

			m := NewManager(st, nil)
			assert.Equal(t, tt.want, TryRestore(ctx, st, m, tt.tourID))
			assert.Equal(t, tt.visited, m.Visited().Len())
			if tt.want {
				assert.Equal(t, tt.wantMode, m.State().Mode)
			}
		})
	}
}

func TestManager_EventsWithSQLite(t *testing.T) {
	ctx := context.Background()
	d, err := db.Init(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer d.Close()
	s := store.NewSQLiteStore(d)

	m := NewManager(s, s)
	m.Start(ctx, "t1", model.ModeReal, model.StyleFunny, model.LangEN)
	m.Record(ctx, EventTrigger, "pantheon", "12.0m")

	evs := m.RecentEvents(ctx, 10)
	require.Len(t, evs, 2)
	assert.Equal(t, EventTrigger, evs[0].Kind)
	assert.Equal(t, "pantheon", evs[0].POIID)
	assert.Equal(t, EventStarted, evs[1].Kind)

	// Restart: a new manager over the same store resumes the session
	m2 := NewManager(s, s)
	require.True(t, TryRestore(ctx, s, m2, "t1"))
	assert.Equal(t, m.State().SessionID, m2.State().SessionID)
}
