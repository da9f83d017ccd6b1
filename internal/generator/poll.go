package generator

import (
	"context"
	"errors"
	"log"
	"time"

	"veoGenerator/internal/api"
	"veoGenerator/internal/models"
)

type ResultKind int

const (
	Completed ResultKind = iota
	RetryWithNextKey
	Fatal
	Duplicate
)

func (k ResultKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case RetryWithNextKey:
		return "retry_with_next_key"
	case Fatal:
		return "fatal"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// PollResult is the outcome of one poll loop. Reason carries the task error
// message for Fatal; Err the underlying cause, if any.
type PollResult struct {
	Kind   ResultKind
	Reason string
	Err    error
}

func fatal(reason string, err error) PollResult {
	return PollResult{Kind: Fatal, Reason: reason, Err: err}
}

// claim registers taskID as polled. It returns false when a loop already runs.
func (d *Driver) claim(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.polling[taskID]; ok {
		return false
	}
	d.polling[taskID] = struct{}{}
	return true
}

func (d *Driver) release(taskID string) {
	d.mu.Lock()
	delete(d.polling, taskID)
	d.mu.Unlock()
}

// poll waits for op to finish, then downloads and stores the video. On
// Completed the task is already marked complete. Only a rejected key during a
// status check moves on to the next key; every other failure ends the task.
func (d *Driver) poll(ctx context.Context, taskID string, op *models.Operation, key string) PollResult {
	if !d.claim(taskID) {
		return PollResult{Kind: Duplicate}
	}
	defer d.release(taskID)

	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return fatal(d.msg("gen_interrupted"), ctx.Err())
		case <-timer.C:
		}

		next, err := d.client.CheckStatus(ctx, op, key)
		if err != nil {
			if ctx.Err() != nil {
				return fatal(d.msg("gen_interrupted"), ctx.Err())
			}
			if errors.Is(err, api.ErrInvalidKey) {
				return PollResult{Kind: RetryWithNextKey, Err: err}
			}
			return fatal(err.Error(), err)
		}
		op = next

		if err := d.state.SetOperation(taskID, op); err != nil {
			return fatal(err.Error(), err)
		}
		d.commit(ctx)
		timer.Reset(d.pollInterval)
	}

	if op.Error != "" {
		return fatal(op.Error, errors.New(op.Error))
	}
	if op.VideoURI == "" {
		return fatal(d.msg("gen_no_video_uri"), nil)
	}

	data, err := d.client.FetchVideo(ctx, op.VideoURI, key)
	if err != nil {
		if ctx.Err() != nil {
			return fatal(d.msg("gen_interrupted"), ctx.Err())
		}
		return fatal(err.Error(), err)
	}

	ref, err := d.media.SaveVideo(taskID, data)
	if err != nil {
		return fatal(err.Error(), err)
	}
	if err := d.state.Complete(taskID, ref); err != nil {
		return fatal(err.Error(), err)
	}
	d.commit(ctx)

	log.Printf("[Driver] Task %s complete: %s", taskID, ref)
	return PollResult{Kind: Completed}
}
