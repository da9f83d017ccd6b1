package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"veoGenerator/internal/api"
	"veoGenerator/internal/i18n"
	"veoGenerator/internal/models"
	"veoGenerator/internal/state"
)

var ErrKeysExhausted = errors.New("all api keys exhausted")

// Media stores downloaded videos and reads uploaded start images.
type Media interface {
	SaveVideo(taskID string, data []byte) (string, error)
	LoadImage(ref models.ImageRef) ([]byte, error)
}

type Options struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// Driver runs submissions against the key list and polls their operations.
type Driver struct {
	state  *state.State
	client api.Generator
	media  Media
	loc    *i18n.Localizer

	pollInterval time.Duration
	retryDelay   time.Duration

	mu      sync.Mutex
	polling map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriver(st *state.State, client api.Generator, media Media, loc *i18n.Localizer, opts Options) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		state:        st,
		client:       client,
		media:        media,
		loc:          loc,
		pollInterval: opts.PollInterval,
		retryDelay:   opts.RetryDelay,
		polling:      make(map[string]struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Generate creates a task from the current settings and runs it with the
// first key in the background. Validation errors are returned directly.
func (d *Driver) Generate(ctx context.Context) (string, error) {
	if strings.TrimSpace(d.state.Settings().Prompt) == "" {
		return "", state.ErrEmptyPrompt
	}
	keys := d.state.Keys()
	if len(keys) == 0 {
		return "", state.ErrNoAPIKeys
	}

	task, err := d.state.StartTask(0, "")
	if err != nil {
		return "", err
	}
	d.commit(ctx)
	log.Printf("[Driver] Task %s started with key #1", task.ID)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.run(d.ctx, task, 0, keys[0]); err != nil {
			log.Printf("[Driver] Generation ended with error: %v", err)
		}
	}()
	return task.ID, nil
}

// Submit runs one submission starting at keyIndex and returns when the task
// (and any retries it spawned) reached a terminal status.
func (d *Driver) Submit(ctx context.Context, keyIndex int) error {
	return d.submit(ctx, keyIndex, "")
}

// Wait blocks until all background submissions returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Stop cancels running submissions and waits for them.
func (d *Driver) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Driver) submit(ctx context.Context, keyIndex int, retryOf string) error {
	if retryOf == "" && d.state.Generating() {
		return state.ErrTaskActive
	}
	keys := d.state.Keys()
	if keyIndex >= len(keys) {
		return d.exhaust(ctx, keyIndex, retryOf)
	}

	task, err := d.state.StartTask(keyIndex, retryOf)
	if err != nil {
		if retryOf != "" && errors.Is(err, state.ErrTaskActive) {
			d.markFailed(ctx, retryOf, d.msg("gen_superseded"))
		}
		if retryOf != "" && errors.Is(err, state.ErrTaskNotFound) {
			log.Printf("[Driver] Retry of %s abandoned: history was cleared", retryOf)
			return fmt.Errorf("retry of %s abandoned: %w", retryOf, err)
		}
		return err
	}
	d.commit(ctx)
	log.Printf("[Driver] Task %s started with key #%d", task.ID, keyIndex+1)

	return d.run(ctx, task, keyIndex, keys[keyIndex])
}

// run starts the remote operation for a generating task and drives it to a
// terminal status, rotating keys when needed.
func (d *Driver) run(ctx context.Context, task models.GenerationTask, keyIndex int, key string) error {
	var image []byte
	if task.Settings.Image != nil {
		var err error
		image, err = d.media.LoadImage(*task.Settings.Image)
		if err != nil {
			d.markFailed(ctx, task.ID, err.Error())
			return fmt.Errorf("failed to load start image: %w", err)
		}
	}

	op, err := d.client.StartGeneration(ctx, task.Settings, image, key)
	if err != nil {
		if api.Rotatable(err) {
			return d.rotate(ctx, task.ID, keyIndex, err)
		}
		if ctx.Err() != nil {
			d.markFailed(ctx, task.ID, d.msg("gen_interrupted"))
			return ctx.Err()
		}
		d.markFailed(ctx, task.ID, err.Error())
		return err
	}

	if err := d.state.SetOperation(task.ID, op); err != nil {
		return err
	}
	d.commit(ctx)

	res := d.poll(ctx, task.ID, op, key)
	switch res.Kind {
	case Completed, Duplicate:
		return nil
	case RetryWithNextKey:
		return d.rotate(ctx, task.ID, keyIndex, res.Err)
	default:
		d.markFailed(ctx, task.ID, res.Reason)
		if res.Err != nil {
			return res.Err
		}
		return errors.New(res.Reason)
	}
}

// rotate ends the attempt on keyIndex and resubmits with the next key after
// the retry delay.
func (d *Driver) rotate(ctx context.Context, taskID string, keyIndex int, cause error) error {
	log.Printf("[Driver] Key #%d failed for task %s: %v", keyIndex+1, taskID, cause)
	d.markFailed(ctx, taskID, d.loc.Getf(d.loc.DefaultLang(), "gen_key_failed", keyIndex+1))

	select {
	case <-ctx.Done():
		d.markFailed(ctx, taskID, d.msg("gen_interrupted"))
		return ctx.Err()
	case <-time.After(d.retryDelay):
	}
	return d.submit(ctx, keyIndex+1, taskID)
}

// exhaust marks the retried task (or a new record) failed and raises the
// quota notice without calling the API.
func (d *Driver) exhaust(ctx context.Context, keyIndex int, retryOf string) error {
	msg := d.msg("gen_exhausted")
	if retryOf != "" {
		if err := d.state.Fail(retryOf, msg); err != nil {
			log.Printf("[Driver] Failed to mark task %s exhausted: %v", retryOf, err)
		}
	} else {
		d.state.AddFailedTask(keyIndex, msg)
	}
	d.state.RaiseNotice()
	d.commit(ctx)
	log.Printf("[Driver] All %d API keys exhausted", keyIndex)
	return ErrKeysExhausted
}

func (d *Driver) markFailed(ctx context.Context, taskID, msg string) {
	if err := d.state.Fail(taskID, msg); err != nil {
		log.Printf("[Driver] Failed to mark task %s: %v", taskID, err)
		return
	}
	d.commit(ctx)
}

// commit persists the state. Terminal updates still land after shutdown
// cancelled ctx.
func (d *Driver) commit(ctx context.Context) {
	if err := d.state.Commit(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[Driver] Failed to persist state: %v", err)
	}
}

func (d *Driver) msg(key string) string {
	return d.loc.Get(d.loc.DefaultLang(), key)
}
