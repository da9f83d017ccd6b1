package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"veoGenerator/internal/core"
	"veoGenerator/internal/history"
	"veoGenerator/internal/models"
)

var (
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrNoAPIKeys         = errors.New("no api keys configured")
	ErrTaskActive        = errors.New("a generation is already running")
	ErrInvalidAPIKey     = errors.New("invalid api key format")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Media is the part of the blob store the state releases files through.
type Media interface {
	ReleaseVideo(ref string) error
	DeleteImage(ref models.ImageRef) error
}

// Snapshot is the view of the state sent to the page.
type Snapshot struct {
	Settings       models.Settings         `json:"settings"`
	Tasks          []models.GenerationTask `json:"tasks"`
	Keys           []string                `json:"keys"`
	QuotaExhausted bool                    `json:"quotaExhausted"`
	Generating     bool                    `json:"generating"`
}

// State owns the settings, the task list (newest first), the key list and the
// quota notice. Mutations only touch memory; Commit persists them and notifies
// the listener.
type State struct {
	mu             sync.RWMutex
	settings       models.Settings
	tasks          []models.GenerationTask
	keys           []string
	quotaExhausted bool

	commitMu sync.Mutex
	history  *history.Store
	media    Media
	onChange func(Snapshot)
	now      func() time.Time
}

func New(h *history.Store, media Media) *State {
	return &State{
		settings: models.DefaultSettings(),
		tasks:    []models.GenerationTask{},
		keys:     []string{},
		history:  h,
		media:    media,
		now:      time.Now,
	}
}

// OnChange registers fn to receive a snapshot after every Commit.
func (s *State) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load restores keys and tasks. seedKeys are used when nothing was saved yet.
func (s *State) Load(ctx context.Context, seedKeys []string) error {
	keys, err := s.history.LoadKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 && len(seedKeys) > 0 {
		keys, err = ParseKeys(strings.Join(seedKeys, "\n"))
		if err != nil {
			return fmt.Errorf("seed keys: %w", err)
		}
		log.Printf("[State] Seeded %d API keys from environment", len(keys))
	}

	tasks, err := s.history.LoadTasks(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = keys
	if s.keys == nil {
		s.keys = []string{}
	}
	s.tasks = tasks
	if s.tasks == nil {
		s.tasks = []models.GenerationTask{}
	}
	s.mu.Unlock()

	log.Printf("[State] Loaded %d keys and %d tasks", len(keys), len(tasks))
	return s.Commit(ctx)
}

// Commit writes keys and tasks to the history store and notifies the listener.
func (s *State) Commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	snap := s.Snapshot()
	s.mu.RLock()
	keys := append([]string(nil), s.keys...)
	fn := s.onChange
	s.mu.RUnlock()

	if err := s.history.SaveKeys(ctx, keys); err != nil {
		return err
	}
	if len(snap.Tasks) == 0 {
		if err := s.history.ClearTasks(ctx); err != nil {
			return err
		}
	} else if err := s.history.SaveTasks(ctx, snap.Tasks); err != nil {
		return err
	}

	if fn != nil {
		fn(snap)
	}
	return nil
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	masked := make([]string, len(s.keys))
	for i, k := range s.keys {
		masked[i] = MaskKey(k)
	}
	return Snapshot{
		Settings:       s.settings,
		Tasks:          s.copyTasksLocked(),
		Keys:           masked,
		QuotaExhausted: s.quotaExhausted,
		Generating:     s.activeLocked() != nil,
	}
}

// Generating reports whether a task is pending, generating or polling.
func (s *State) Generating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked() != nil
}

func (s *State) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys...)
}

func (s *State) Tasks() []models.GenerationTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyTasksLocked()
}

func (s *State) Task(id string) (models.GenerationTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.findLocked(id); t != nil {
		return copyTask(*t), true
	}
	return models.GenerationTask{}, false
}

// SetKeys replaces the key list with the keys parsed from text.
func (s *State) SetKeys(text string) error {
	keys, err := ParseKeys(text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	return nil
}

// UpdateSettings applies prompt, model, ratio and resolution. The image is
// managed through SetImage and RemoveImage.
func (s *State) UpdateSettings(next models.Settings) error {
	if err := core.ValidateSettings(next); err != nil {
		return err
	}
	s.mu.Lock()
	next.Image = s.settings.Image
	s.settings = next
	s.mu.Unlock()
	return nil
}

func (s *State) SetImage(ref models.ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.settings.Image
	s.settings.Image = &ref
	s.dropImageLocked(old)
}

func (s *State) RemoveImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.settings.Image
	s.settings.Image = nil
	s.dropImageLocked(old)
}

func (s *State) ClearPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.settings.Image
	s.settings.Prompt = ""
	s.settings.Image = nil
	s.dropImageLocked(old)
}

// ClearHistory releases every video held by the task list and empties it.
// It refuses while a generation is running.
func (s *State) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeLocked() != nil {
		return ErrTaskActive
	}

	var errs []error
	images := map[string]models.ImageRef{}
	for _, t := range s.tasks {
		if t.VideoURL != "" {
			if err := s.media.ReleaseVideo(t.VideoURL); err != nil {
				errs = append(errs, err)
			}
		}
		if img := t.Settings.Image; img != nil {
			images[img.Name] = *img
		}
	}
	s.tasks = []models.GenerationTask{}

	for _, img := range images {
		if s.settings.Image != nil && s.settings.Image.Name == img.Name {
			continue
		}
		if err := s.media.DeleteImage(img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *State) RaiseNotice() {
	s.mu.Lock()
	s.quotaExhausted = true
	s.mu.Unlock()
}

func (s *State) DismissNotice() {
	s.mu.Lock()
	s.quotaExhausted = false
	s.mu.Unlock()
}

// StartTask adds a generating task for keyIndex. With retryOf set, the new
// attempt copies the settings of that task; otherwise it takes the current
// settings, which need a prompt.
func (s *State) StartTask(keyIndex int, retryOf string) (models.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeLocked() != nil {
		return models.GenerationTask{}, ErrTaskActive
	}

	settings := s.settings
	if retryOf != "" {
		prev := s.findLocked(retryOf)
		if prev == nil {
			return models.GenerationTask{}, fmt.Errorf("%w: %s", ErrTaskNotFound, retryOf)
		}
		settings = prev.Settings
	}
	if strings.TrimSpace(settings.Prompt) == "" {
		return models.GenerationTask{}, ErrEmptyPrompt
	}

	task := s.newTaskLocked(settings, keyIndex)
	task.Status = models.StatusGenerating
	task.RetryOf = retryOf
	s.tasks = append([]models.GenerationTask{task}, s.tasks...)
	return task, nil
}

// AddFailedTask records a task that failed before any attempt started.
func (s *State) AddFailedTask(keyIndex int, msg string) models.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.newTaskLocked(s.settings, keyIndex)
	task.Status = models.StatusError
	task.Error = msg
	s.tasks = append([]models.GenerationTask{task}, s.tasks...)
	return task
}

// SetOperation stores the latest operation handle and moves the task to polling.
func (s *State) SetOperation(id string, op *models.Operation) error {
	return s.transition(id, models.StatusPolling, func(t *models.GenerationTask) {
		cp := *op
		t.Operation = &cp
	})
}

func (s *State) Complete(id, videoURL string) error {
	return s.transition(id, models.StatusComplete, func(t *models.GenerationTask) {
		t.VideoURL = videoURL
		t.Operation = nil
		t.Error = ""
	})
}

func (s *State) Fail(id, msg string) error {
	return s.transition(id, models.StatusError, func(t *models.GenerationTask) {
		t.Error = msg
		t.Operation = nil
	})
}

func (s *State) transition(id string, next models.TaskStatus, apply func(*models.GenerationTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	apply(t)
	return nil
}

func (s *State) newTaskLocked(settings models.Settings, keyIndex int) models.GenerationTask {
	now := s.now().UTC()
	id := now.Format(time.RFC3339Nano)
	for s.findLocked(id) != nil {
		now = now.Add(time.Nanosecond)
		id = now.Format(time.RFC3339Nano)
	}
	if settings.Image != nil {
		img := *settings.Image
		settings.Image = &img
	}
	return models.GenerationTask{
		ID:        id,
		Prompt:    settings.Prompt,
		Settings:  settings,
		Status:    models.StatusPending,
		KeyIndex:  keyIndex,
		CreatedAt: now,
	}
}

func (s *State) findLocked(id string) *models.GenerationTask {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return &s.tasks[i]
		}
	}
	return nil
}

func (s *State) activeLocked() *models.GenerationTask {
	for i := range s.tasks {
		if s.tasks[i].Status.Active() {
			return &s.tasks[i]
		}
	}
	return nil
}

// dropImageLocked deletes an image no longer used by the settings or a task.
func (s *State) dropImageLocked(ref *models.ImageRef) {
	if ref == nil {
		return
	}
	if s.settings.Image != nil && s.settings.Image.Name == ref.Name {
		return
	}
	for _, t := range s.tasks {
		if t.Settings.Image != nil && t.Settings.Image.Name == ref.Name {
			return
		}
	}
	if err := s.media.DeleteImage(*ref); err != nil {
		log.Printf("[State] Failed to delete image %s: %v", ref.Name, err)
	}
}

func (s *State) copyTasksLocked() []models.GenerationTask {
	out := make([]models.GenerationTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = copyTask(t)
	}
	return out
}

func copyTask(t models.GenerationTask) models.GenerationTask {
	if t.Operation != nil {
		op := *t.Operation
		t.Operation = &op
	}
	if t.Settings.Image != nil {
		img := *t.Settings.Image
		t.Settings.Image = &img
	}
	return t
}
