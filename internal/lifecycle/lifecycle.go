// Package lifecycle tracks application review states on the client.
//
// An application starts pending and moves once, to approved or rejected.
// Terminal states never change again.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUnknown           = errors.New("application not tracked")
)

// CheckTransition reports whether an application may move from one status to
// another. Re-applying the current non-terminal status is a no-op and allowed.
func CheckTransition(from, to models.Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	if from == models.StatusPending {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Tracker holds the last known status of every application the client has seen.
type Tracker struct {
	mu   sync.Mutex
	apps map[int64]models.Application
}

func NewTracker() *Tracker {
	return &Tracker{apps: make(map[int64]models.Application)}
}

// Track records a freshly created application.
func (t *Tracker) Track(app models.Application) error {
	return t.Observe(app)
}

// Observe merges server data for app. Data that would move a terminal
// application to another status is refused and the tracked copy kept.
func (t *Tracker) Observe(app models.Application) error {
	if !app.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, app.Status)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.apps[app.ID]; ok && cur.Status != app.Status {
		if err := CheckTransition(cur.Status, app.Status); err != nil {
			return err
		}
	}
	t.apps[app.ID] = app
	return nil
}

// ObserveAll merges a list and returns the first refusal, if any. Every other
// item is still merged.
func (t *Tracker) ObserveAll(apps []models.Application) error {
	var first error
	for _, a := range apps {
		if err := t.Observe(a); err != nil && first == nil {
			first = fmt.Errorf("application %d: %w", a.ID, err)
		}
	}
	return first
}

// CanTransition checks a move of a tracked application without applying it.
// Untracked applications are left for the server to judge.
func (t *Tracker) CanTransition(id int64, to models.Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.apps[id]
	if !ok {
		if !to.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
		}
		return nil
	}
	return CheckTransition(cur.Status, to)
}

// Transition moves a tracked application to status to.
func (t *Tracker) Transition(id int64, to models.Status) (models.Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.apps[id]
	if !ok {
		return models.Application{}, fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	if err := CheckTransition(cur.Status, to); err != nil {
		return cur, err
	}
	cur.Status = to
	t.apps[id] = cur
	return cur, nil
}

func (t *Tracker) Status(id int64) (models.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.apps[id]
	return a.Status, ok
}

// List returns tracked applications newest id first.
func (t *Tracker) List() []models.Application {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Application, 0, len(t.apps))
	for _, a := range t.apps {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apps = make(map[int64]models.Application)
}
