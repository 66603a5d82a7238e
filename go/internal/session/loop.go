package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrLoopStopped is returned by Do once Run has returned.
var ErrLoopStopped = errors.New("session loop stopped")

type task struct {
	fn    func(*State) error
	reply chan error
}

// Loop serializes every access to a State on one goroutine. Timer fires,
// push frames and user commands are all turned into closures run here.
//
// Closures must not block on I/O and must not call Do themselves.
type Loop struct {
	state   *State
	inbox   chan task
	stopped chan struct{}
}

// NewLoop creates a loop owning state. Nothing runs until Run is called.
func NewLoop(state *State) *Loop {
	return &Loop{
		state:   state,
		inbox:   make(chan task, 64),
		stopped: make(chan struct{}),
	}
}

// Run executes queued closures until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	log.Debug().Msg("session loop started")
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("session loop stopped")
			return ctx.Err()
		case t := <-l.inbox:
			err := t.fn(l.state)
			if t.reply != nil {
				t.reply <- err
			}
		}
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(*State) error) error {
	t := task{fn: fn, reply: make(chan error, 1)}

	select {
	case l.inbox <- t:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.reply:
		return err
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting for it to run. It blocks only while the
// inbox is full, and drops fn once the loop has stopped.
func (l *Loop) Post(fn func(*State)) {
	t := task{fn: func(s *State) error {
		fn(s)
		return nil
	}}

	select {
	case l.inbox <- t:
	case <-l.stopped:
		log.Debug().Msg("session loop stopped, dropping posted update")
	}
}
