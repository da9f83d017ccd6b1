package state

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"veoGenerator/internal/core"
	"veoGenerator/internal/database"
	"veoGenerator/internal/history"
	"veoGenerator/internal/models"
)

type fakeMedia struct {
	released []string
	deleted  []string
}

func (m *fakeMedia) ReleaseVideo(ref string) error {
	m.released = append(m.released, ref)
	return nil
}

func (m *fakeMedia) DeleteImage(ref models.ImageRef) error {
	m.deleted = append(m.deleted, ref.Name)
	return nil
}

func testKey(c string) string {
	return "AIza" + strings.Repeat(c, 35)
}

func newTestState(t *testing.T) (*State, *history.Store, *fakeMedia) {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	h := history.NewStore(db, "interrupted")
	media := &fakeMedia{}
	s := New(h, media)

	clock := time.Date(2025, 10, 19, 5, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, h, media
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"single", testKey("a"), 1, false},
		{"blank lines ignored", "\n" + testKey("a") + "\n\n  " + testKey("b") + "  \n", 2, false},
		{"empty", "  \n ", 0, false},
		{"short key", "AIza123", 0, true},
		{"wrong prefix", "BIza" + strings.Repeat("a", 35), 0, true},
		{"one bad line rejects all", testKey("a") + "\nnope", 0, true},
		{"dash and underscore", "AIza" + strings.Repeat("-_", 17) + "x", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := ParseKeys(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAPIKey) {
					t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(keys) != tt.want {
				t.Errorf("got %d keys, want %d", len(keys), tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	key := testKey("x")
	masked := MaskKey(key)
	if !strings.HasPrefix(masked, "AIza") || !strings.HasSuffix(masked, "xxxx") {
		t.Errorf("MaskKey() = %q", masked)
	}
	if strings.Contains(masked, strings.Repeat("x", 5)) {
		t.Errorf("MaskKey() leaks key body: %q", masked)
	}
	if MaskKey("abc") != "•••" {
		t.Errorf("short key not fully masked: %q", MaskKey("abc"))
	}
}

func TestSetKeysRejectsWholeList(t *testing.T) {
	s, _, _ := newTestState(t)

	if err := s.SetKeys(testKey("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetKeys(testKey("b") + "\ninvalid"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("SetKeys() error = %v", err)
	}
	if keys := s.Keys(); len(keys) != 1 || keys[0] != testKey("a") {
		t.Errorf("keys changed after rejected update: %v", keys)
	}
}

func TestLoadSeedsKeysAndCommitPersists(t *testing.T) {
	s, h, _ := newTestState(t)
	ctx := context.Background()

	var got Snapshot
	s.OnChange(func(snap Snapshot) { got = snap })

	if err := s.Load(ctx, []string{testKey("a"), testKey("b")}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Keys) != 2 || got.Keys[0] == testKey("a") {
		t.Errorf("snapshot keys not masked: %v", got.Keys)
	}

	saved, err := h.LoadKeys(ctx)
	if err != nil || len(saved) != 2 {
		t.Errorf("persisted keys = %v, %v", saved, err)
	}
}

func TestLoadRejectsBadSeed(t *testing.T) {
	s, _, _ := newTestState(t)
	if err := s.Load(context.Background(), []string{"nope"}); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Load() error = %v", err)
	}
}

func TestStartTask(t *testing.T) {
	s, _, _ := newTestState(t)

	if _, err := s.StartTask(0, ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}

	settings := models.DefaultSettings()
	settings.Prompt = "a cat surfing"
	if err := s.UpdateSettings(settings); err != nil {
		t.Fatal(err)
	}

	first, err := s.StartTask(0, "")
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}
	if first.Status != models.StatusGenerating || first.Prompt != "a cat surfing" {
		t.Errorf("unexpected task %+v", first)
	}
	if first.ID != "2025-10-19T05:00:00Z" {
		t.Errorf("ID = %q", first.ID)
	}

	if _, err := s.StartTask(0, ""); !errors.Is(err, ErrTaskActive) {
		t.Fatalf("expected ErrTaskActive, got %v", err)
	}

	if err := s.Fail(first.ID, "Key #1 failed. Trying next key..."); err != nil {
		t.Fatal(err)
	}

	// The retry carries the snapshot even after the prompt is cleared.
	s.ClearPrompt()
	retry, err := s.StartTask(1, first.ID)
	if err != nil {
		t.Fatalf("StartTask(retry) error = %v", err)
	}
	if retry.ID == first.ID {
		t.Error("retry reused the task id")
	}
	if retry.Prompt != "a cat surfing" || retry.KeyIndex != 1 {
		t.Errorf("retry = %+v", retry)
	}
	if retry.RetryOf != first.ID || first.RetryOf != "" {
		t.Errorf("RetryOf = %q (first %q), want %q", retry.RetryOf, first.RetryOf, first.ID)
	}
	if !s.Generating() {
		t.Error("Generating() = false with a task in flight")
	}

	tasks := s.Tasks()
	if len(tasks) != 2 || tasks[0].ID != retry.ID {
		t.Errorf("tasks not newest first: %+v", tasks)
	}
	if prev, _ := s.Task(first.ID); prev.Status != models.StatusError {
		t.Errorf("previous attempt status = %s", prev.Status)
	}
}

func TestTransitionsAreMonotonic(t *testing.T) {
	s, _, _ := newTestState(t)
	settings := models.DefaultSettings()
	settings.Prompt = "p"
	if err := s.UpdateSettings(settings); err != nil {
		t.Fatal(err)
	}
	task, err := s.StartTask(0, "")
	if err != nil {
		t.Fatal(err)
	}

	op := &models.Operation{Name: "operations/1"}
	if err := s.SetOperation(task.ID, op); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOperation(task.ID, op); err != nil {
		t.Errorf("polling -> polling rejected: %v", err)
	}
	if err := s.Complete(task.ID, "/videos/x.mp4"); err != nil {
		t.Fatal(err)
	}

	if err := s.SetOperation(task.ID, op); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete -> polling error = %v", err)
	}
	if err := s.Fail(task.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete -> error error = %v", err)
	}

	got, _ := s.Task(task.ID)
	if got.Status != models.StatusComplete || got.Operation != nil || got.VideoURL != "/videos/x.mp4" {
		t.Errorf("completed task = %+v", got)
	}

	if err := s.Fail("missing", "x"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Fail(missing) error = %v", err)
	}
}

func TestUpdateSettingsValidates(t *testing.T) {
	s, _, _ := newTestState(t)

	bad := models.DefaultSettings()
	bad.Resolution = "4k"
	if err := s.UpdateSettings(bad); !errors.Is(err, core.ErrUnsupportedOption) {
		t.Errorf("UpdateSettings() error = %v", err)
	}

	s.SetImage(models.ImageRef{Name: "a.png", MIMEType: "image/png"})
	good := models.DefaultSettings()
	good.Prompt = "x"
	if err := s.UpdateSettings(good); err != nil {
		t.Fatal(err)
	}
	if s.Settings().Image == nil {
		t.Error("UpdateSettings dropped the image")
	}
}

func TestImageDeletedOnlyWhenUnreferenced(t *testing.T) {
	s, _, media := newTestState(t)

	s.SetImage(models.ImageRef{Name: "a.png"})
	settings := s.Settings()
	settings.Prompt = "p"
	if err := s.UpdateSettings(settings); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartTask(0, ""); err != nil {
		t.Fatal(err)
	}

	s.SetImage(models.ImageRef{Name: "b.png"})
	if len(media.deleted) != 0 {
		t.Errorf("deleted image still used by a task: %v", media.deleted)
	}

	s.RemoveImage()
	if len(media.deleted) != 1 || media.deleted[0] != "b.png" {
		t.Errorf("deleted = %v, want [b.png]", media.deleted)
	}
}

func TestClearHistory(t *testing.T) {
	s, h, media := newTestState(t)
	ctx := context.Background()

	settings := models.DefaultSettings()
	settings.Prompt = "p"
	if err := s.UpdateSettings(settings); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		task, err := s.StartTask(0, "")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.SetOperation(task.ID, &models.Operation{Name: "op"}); err != nil {
			t.Fatal(err)
		}
		if err := s.ClearHistory(); !errors.Is(err, ErrTaskActive) {
			t.Fatalf("ClearHistory() while active error = %v", err)
		}
		if err := s.Complete(task.ID, "/videos/"+task.ID+".mp4"); err != nil {
			t.Fatal(err)
		}
	}
	s.AddFailedTask(0, "boom")
	if err := s.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	if len(media.released) != 2 {
		t.Errorf("released %v, want both videos", media.released)
	}
	if len(s.Tasks()) != 0 {
		t.Errorf("tasks not emptied: %v", s.Tasks())
	}
	saved, err := h.LoadTasks(ctx)
	if err != nil || len(saved) != 0 {
		t.Errorf("persisted tasks = %v, %v", saved, err)
	}
}

func TestNoticeToggles(t *testing.T) {
	s, _, _ := newTestState(t)
	s.RaiseNotice()
	if !s.Snapshot().QuotaExhausted {
		t.Error("notice not raised")
	}
	s.DismissNotice()
	if s.Snapshot().QuotaExhausted {
		t.Error("notice not dismissed")
	}
}
