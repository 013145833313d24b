package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"odysseywalk/pkg/db"
	"odysseywalk/pkg/store"
)

func TestMaintenance(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	oldDeadline := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO audio_cache (key, data, created_at) VALUES (?, ?, ?)", "old_clip", []byte("x"), oldDeadline); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO audio_cache (key, data) VALUES (?, ?)", "new_clip", []byte("x")); err != nil {
		t.Fatal(err)
	}

	Run(ctx, s, d, DefaultConfig())

	var count int
	if err := d.QueryRow("SELECT count(*) FROM audio_cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 clip after pruning, got %d", count)
	}
	if _, ok := s.GetState(ctx, lastRunStateKey); !ok {
		t.Error("Expected last run to be recorded")
	}

	// A second run inside MinInterval is skipped
	if _, err := d.Exec("INSERT INTO audio_cache (key, data, created_at) VALUES (?, ?, ?)", "old_clip_2", []byte("x"), oldDeadline); err != nil {
		t.Fatal(err)
	}
	Run(ctx, s, d, DefaultConfig())
	_ = d.QueryRow("SELECT count(*) FROM audio_cache").Scan(&count)
	if count != 2 {
		t.Errorf("Expected skipped run to leave 2 clips, got %d", count)
	}
}
