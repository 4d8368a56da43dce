// Package worker runs generations in the background, one at a time, over a
// single inference context.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"llamactx/internal/inference"
)

// Worker is a future over inference.Context.Generate. Start fails fast while
// a run is in flight; Latest returns the text of the most recent run.
type Worker struct {
	mu     sync.Mutex
	ictx   *inference.Context
	params inference.GenerateParams
	pubs   []inference.Publisher
	group  *errgroup.Group
	busy   bool
	latest string
	err    error
}

// New binds a worker to ictx. params apply to every run. With publishers,
// runs stream token events to them.
func New(ictx *inference.Context, params inference.GenerateParams, pubs ...inference.Publisher) *Worker {
	return &Worker{ictx: ictx, params: params, pubs: pubs}
}

// SetContext swaps the bound context. It fails while a run is in flight.
func (w *Worker) SetContext(ictx *inference.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return inference.ErrBusy
	}
	w.ictx = ictx
	return nil
}

// Start sets the prompt and begins generating on a new goroutine.
func (w *Worker) Start(ctx context.Context, prompt string, maxTokens int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return inference.ErrBusy
	}
	if w.ictx == nil {
		return inference.ErrUnconfigured
	}
	// Joining the previous group is immediate: it finished when busy cleared.
	if w.group != nil {
		_ = w.group.Wait()
	}
	ictx, params, pubs := w.ictx, w.params, w.pubs
	w.busy = true
	w.err = nil
	g := &errgroup.Group{}
	w.group = g
	g.Go(func() error {
		ictx.SetPrompt(prompt)
		var (
			text string
			err  error
		)
		if len(pubs) > 0 {
			text, err = ictx.GenerateStream(ctx, maxTokens, params, pubs...)
		} else {
			text, err = ictx.Generate(ctx, maxTokens, params)
		}
		w.mu.Lock()
		w.latest, w.err, w.busy = text, err, false
		w.mu.Unlock()
		return err
	})
	return nil
}

// Busy reports whether a run is in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Latest returns the text of the last completed run.
func (w *Worker) Latest() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Err returns the error of the last completed run.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Cancel asks the running generation to stop.
func (w *Worker) Cancel() {
	w.mu.Lock()
	ictx := w.ictx
	w.mu.Unlock()
	if ictx != nil {
		ictx.Cancel()
	}
}

// Wait blocks until the current run finishes and returns its error.
func (w *Worker) Wait() error {
	w.mu.Lock()
	g := w.group
	w.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}
