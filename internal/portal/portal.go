// Package portal coordinates the client side of the rewards platform: the
// session, the resource client, the balance projection and the application
// tracker. It enforces one in-flight request per control and drops results
// that arrive for a closed view or a session that has since changed.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/IVANFROL/reklama-oleg/internal/client"
	"github.com/IVANFROL/reklama-oleg/internal/ledger"
	"github.com/IVANFROL/reklama-oleg/internal/lifecycle"
	"github.com/IVANFROL/reklama-oleg/internal/models"
	"github.com/IVANFROL/reklama-oleg/internal/session"
	"github.com/IVANFROL/reklama-oleg/internal/validate"
)

var (
	// ErrBusy is returned when the same control already has a request in flight.
	ErrBusy = errors.New("request already in progress")
	// ErrStale is returned when a result was discarded because its view was
	// closed or the session changed while the request was in flight.
	ErrStale = errors.New("result discarded")
)

// API is the backend as the portal uses it. *client.Client implements it.
type API interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.Identity, error)
	Login(ctx context.Context, req models.LoginRequest) (models.Token, error)
	Me(ctx context.Context) (models.Identity, error)
	Identify(ctx context.Context, token string) (models.Identity, error)
	ListAds(ctx context.Context) ([]models.Ad, error)
	ViewAd(ctx context.Context, adID int64) (models.AdView, error)
	ApplicationCost(ctx context.Context) (models.ApplicationCost, error)
	CreateApplication(ctx context.Context, draft models.ApplicationDraft) (models.Application, error)
	ListMyApplications(ctx context.Context) ([]models.Application, error)
	ListAllApplications(ctx context.Context) ([]models.Application, error)
	SetApplicationStatus(ctx context.Context, id int64, status models.Status) (models.Application, error)
	Upload(ctx context.Context, filename string, r io.Reader) (models.Upload, error)
}

var _ API = (*client.Client)(nil)

type Options struct {
	// DefaultCost is used for the affordability hint until the backend has
	// reported the real cost.
	DefaultCost float64
	Logger      *slog.Logger
}

type Portal struct {
	api       API
	session   *session.Store
	ledger    *ledger.Projection
	tracker   *lifecycle.Tracker
	validator *validate.Validator
	log       *slog.Logger

	inflight guard
	flight   singleflight.Group

	mu       sync.Mutex
	lastCost float64
}

func New(api API, store *session.Store, v *validate.Validator, opts Options) *Portal {
	if opts.DefaultCost <= 0 {
		opts.DefaultCost = models.DefaultApplicationCost
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Portal{
		api:       api,
		session:   store,
		ledger:    ledger.NewProjection(),
		tracker:   lifecycle.NewTracker(),
		validator: v,
		log:       log,
		inflight:  guard{active: make(map[string]struct{})},
		lastCost:  opts.DefaultCost,
	}
}

func (p *Portal) Session() *session.Store { return p.session }
func (p *Portal) Ledger() *ledger.Projection { return p.ledger }
func (p *Portal) Tracker() *lifecycle.Tracker { return p.tracker }
func (p *Portal) Validator() *validate.Validator { return p.validator }

// Identity is the signed-in user, if any.
func (p *Portal) Identity() (models.Identity, bool) {
	return p.session.Current()
}

// Balance is the projected balance.
func (p *Portal) Balance() float64 {
	return p.ledger.Balance()
}

// Advice runs the advisory affordability check for cost against the
// projected balance.
func (p *Portal) Advice(cost float64) lifecycle.Advice {
	return lifecycle.Affordable(p.ledger.Balance(), cost, p.ledger.Stale())
}

// Restore brings back the session stored by an earlier run. Concurrent calls
// share one request.
func (p *Portal) Restore(ctx context.Context) (models.Identity, bool, error) {
	type restored struct {
		id models.Identity
		ok bool
	}
	v, err, _ := p.flight.Do("restore", func() (interface{}, error) {
		p.ledger.Reset()
		p.tracker.Reset()
		seq := p.ledger.Mark()
		id, ok, err := p.session.Restore(ctx, p.api.Identify)
		if err != nil || !ok {
			return restored{}, err
		}
		p.ledger.Refresh(id.Balance, seq)
		return restored{id: id, ok: true}, nil
	})
	if err != nil {
		return models.Identity{}, false, err
	}
	r := v.(restored)
	return r.id, r.ok, nil
}

// Login signs in and establishes the session.
func (p *Portal) Login(ctx context.Context, username, password string) (models.Identity, error) {
	release, ok := p.inflight.acquire("auth")
	if !ok {
		return models.Identity{}, ErrBusy
	}
	defer release()
	return p.login(ctx, models.LoginRequest{Username: username, Password: password})
}

func (p *Portal) login(ctx context.Context, req models.LoginRequest) (models.Identity, error) {
	if err := p.validator.Login(req); err != nil {
		return models.Identity{}, err
	}
	tok, err := p.api.Login(ctx, req)
	if err != nil {
		return models.Identity{}, err
	}
	id, err := p.api.Identify(ctx, tok.AccessToken)
	if err != nil {
		return models.Identity{}, err
	}
	if err := p.session.Establish(ctx, tok.AccessToken, id); err != nil {
		return models.Identity{}, fmt.Errorf("store credential: %w", err)
	}
	p.ledger.Reset()
	p.tracker.Reset()
	p.ledger.Refresh(id.Balance, p.ledger.Mark())
	p.log.Info("signed in", "user_id", id.ID, "username", id.Username)
	return id, nil
}

// Register creates an account and signs in with it. confirm is the repeated
// password.
func (p *Portal) Register(ctx context.Context, req models.RegisterRequest, confirm string) (models.Identity, error) {
	release, ok := p.inflight.acquire("auth")
	if !ok {
		return models.Identity{}, ErrBusy
	}
	defer release()
	if err := p.validator.Register(req, confirm); err != nil {
		return models.Identity{}, err
	}
	if _, err := p.api.Register(ctx, req); err != nil {
		return models.Identity{}, err
	}
	return p.login(ctx, models.LoginRequest{Username: req.Username, Password: req.Password})
}

// Logout ends the session. Requests still in flight are discarded when they
// return.
func (p *Portal) Logout(ctx context.Context) error {
	err := p.session.Clear(ctx)
	p.ledger.Reset()
	p.tracker.Reset()
	return err
}

// ApplicationCost asks the backend for the current cost. On failure it
// returns the last known cost together with the error.
func (p *Portal) ApplicationCost(ctx context.Context) (float64, error) {
	v, err, _ := p.flight.Do("cost", func() (interface{}, error) {
		c, err := p.api.ApplicationCost(ctx)
		if err != nil {
			return nil, err
		}
		return c.Cost, nil
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		return p.lastCost, err
	}
	if cost := v.(float64); cost > 0 {
		p.lastCost = cost
	}
	return p.lastCost, nil
}

func (p *Portal) knownCost() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCost
}

// guard admits one holder per key.
type guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func (g *guard) acquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return nil, false
	}
	g.active[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.active, key)
		g.mu.Unlock()
	}, true
}

func adKey(id int64) string { return "ad:" + strconv.FormatInt(id, 10) }
func reviewKey(id int64) string { return "review:" + strconv.FormatInt(id, 10) }
