package history

import (
	"context"
	"encoding/json"
	"fmt"

	"veoGenerator/internal/database"
	"veoGenerator/internal/models"
)

const (
	KeyAPIKeys = "apiKeys"
	KeyTasks   = "videoTasks"
)

// Store persists the API key list and the task list as two JSON entries.
// Operation handles are never written.
type Store struct {
	kv             database.KV
	interruptedMsg string
}

func NewStore(kv database.KV, interruptedMsg string) *Store {
	return &Store{kv: kv, interruptedMsg: interruptedMsg}
}

func (s *Store) LoadKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.load(ctx, KeyAPIKeys, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) SaveKeys(ctx context.Context, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return s.save(ctx, KeyAPIKeys, keys)
}

// LoadTasks returns the saved tasks. Tasks left generating or polling by a
// previous process come back as errors, since their handles did not survive.
func (s *Store) LoadTasks(ctx context.Context) ([]models.GenerationTask, error) {
	var tasks []models.GenerationTask
	if err := s.load(ctx, KeyTasks, &tasks); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Operation = nil
		if tasks[i].Status.Active() {
			tasks[i].Status = models.StatusError
			tasks[i].Error = s.interruptedMsg
		}
	}
	return tasks, nil
}

func (s *Store) SaveTasks(ctx context.Context, tasks []models.GenerationTask) error {
	if tasks == nil {
		tasks = []models.GenerationTask{}
	}
	return s.save(ctx, KeyTasks, tasks)
}

func (s *Store) ClearTasks(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyTasks); err != nil {
		return fmt.Errorf("failed to clear %s: %w", KeyTasks, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string, out any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
