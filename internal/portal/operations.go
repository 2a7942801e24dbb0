package portal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/lifecycle"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// Refresh refetches the identity, the active ads and the user's applications
// and loads them into v. The refetched balance replaces the projection.
func (p *Portal) Refresh(ctx context.Context, v *View) error {
	release, ok := p.inflight.acquire("refresh")
	if !ok {
		return ErrBusy
	}
	defer release()

	epoch := p.session.Epoch()
	seq := p.ledger.Mark()

	var (
		me   models.Identity
		ads  []models.Ad
		apps []models.Application
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		me, err = p.api.Me(gctx)
		return err
	})
	g.Go(func() (err error) {
		ads, err = p.api.ListAds(gctx)
		return err
	})
	g.Go(func() (err error) {
		apps, err = p.api.ListMyApplications(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if !p.session.UpdateIdentity(me, epoch) {
		p.log.Debug("dropping refresh for an old session")
		return ErrStale
	}
	p.ledger.Refresh(me.Balance, seq)
	if err := p.tracker.ObserveAll(apps); err != nil {
		p.log.Warn("server reported an impossible status change", "error", err)
	}
	return v.update(epoch, func(v *View) {
		v.ident = me
		v.ads = ads
		v.apps = apps
	})
}

// ViewAd claims the reward for an ad. The projected balance is credited with
// the reward the backend reports and the ad list in v is reloaded.
func (p *Portal) ViewAd(ctx context.Context, v *View, adID int64) (models.AdView, error) {
	release, ok := p.inflight.acquire(adKey(adID))
	if !ok {
		return models.AdView{}, ErrBusy
	}
	defer release()

	epoch := p.session.Epoch()
	seq := p.ledger.Mark()
	view, err := p.api.ViewAd(ctx, adID)
	if err != nil {
		return models.AdView{}, err
	}
	if p.session.Epoch() != epoch {
		return view, ErrStale
	}
	p.ledger.Credit(view.RewardEarned, seq, adID)
	p.log.Info("ad reward credited", "ad_id", adID, "reward", view.RewardEarned)

	if v != nil && v.Open() {
		ads, err := p.api.ListAds(ctx)
		if err != nil {
			p.log.Warn("reload ads after view", "error", err)
			return view, nil
		}
		if err := v.update(epoch, func(v *View) { v.ads = ads }); err != nil {
			p.log.Debug("ad list dropped", "ad_id", adID)
		}
	}
	return view, nil
}

// SubmitApplication validates the draft and creates the application. The
// affordability check only produces a warning; a refusal from the backend
// leaves the balance and the tracked applications untouched.
func (p *Portal) SubmitApplication(ctx context.Context, v *View, draft models.ApplicationDraft) (models.Application, error) {
	if err := p.validator.Application(draft); err != nil {
		return models.Application{}, err
	}
	release, ok := p.inflight.acquire("submit")
	if !ok {
		return models.Application{}, ErrBusy
	}
	defer release()

	if adv := p.Advice(p.knownCost()); !adv.Allowed {
		p.log.Warn("balance looks too low for an application",
			"balance", p.ledger.Balance(), "shortfall", adv.Shortfall, "stale", adv.Stale)
	}

	epoch := p.session.Epoch()
	seq := p.ledger.Mark()
	app, err := p.api.CreateApplication(ctx, draft)
	if err != nil {
		return models.Application{}, err
	}
	if p.session.Epoch() != epoch {
		return app, ErrStale
	}
	p.ledger.Debit(app.EffectiveCost(), seq, app.ID)
	if err := p.tracker.Track(app); err != nil {
		p.log.Warn("track new application", "application_id", app.ID, "error", err)
	}
	p.log.Info("application submitted", "application_id", app.ID, "cost", app.EffectiveCost())
	if err := v.update(epoch, func(v *View) { v.apps = append([]models.Application{app}, v.apps...) }); err != nil {
		p.log.Debug("new application not shown", "application_id", app.ID)
	}
	return app, nil
}

// UploadMedia uploads one attachment. field names the form control the file
// belongs to; each field accepts one upload at a time.
func (p *Portal) UploadMedia(ctx context.Context, field, filename string, r io.Reader) (models.Upload, error) {
	release, ok := p.inflight.acquire("upload:" + field)
	if !ok {
		return models.Upload{}, ErrBusy
	}
	defer release()
	up, err := p.api.Upload(ctx, filename, r)
	if err != nil {
		return models.Upload{}, err
	}
	p.log.Info("media uploaded", "field", field, "type", up.Type, "size", up.Size)
	return up, nil
}

// AdminApplications lists every application, optionally narrowed to one
// status, and loads the result into v.
func (p *Portal) AdminApplications(ctx context.Context, v *View, filter models.Status) ([]models.Application, error) {
	if filter != "" && !filter.Valid() {
		return nil, apierr.Validation("list_applications", map[string]string{"status": "unknown status"})
	}
	release, ok := p.inflight.acquire("admin:list")
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	epoch := p.session.Epoch()
	apps, err := p.api.ListAllApplications(ctx)
	if err != nil {
		return nil, err
	}
	if p.session.Epoch() != epoch {
		return nil, ErrStale
	}
	if err := p.tracker.ObserveAll(apps); err != nil {
		p.log.Warn("server reported an impossible status change", "error", err)
	}
	out := models.FilterApplications(apps, filter)
	if err := v.update(epoch, func(v *View) { v.admin = out }); err != nil {
		return out, err
	}
	return out, nil
}

// Review approves or rejects an application. Moves out of a terminal status
// fail with lifecycle.ErrInvalidTransition before any request is sent.
func (p *Portal) Review(ctx context.Context, id int64, status models.Status) (models.Application, error) {
	if err := p.validator.Status(status); err != nil {
		return models.Application{}, err
	}
	release, ok := p.inflight.acquire(reviewKey(id))
	if !ok {
		return models.Application{}, ErrBusy
	}
	defer release()

	if _, known := p.tracker.Status(id); !known {
		apps, err := p.api.ListAllApplications(ctx)
		if err != nil {
			return models.Application{}, err
		}
		if err := p.tracker.ObserveAll(apps); err != nil {
			p.log.Warn("server reported an impossible status change", "error", err)
		}
	}
	if err := p.tracker.CanTransition(id, status); err != nil {
		return models.Application{}, fmt.Errorf("application %d: %w", id, err)
	}

	epoch := p.session.Epoch()
	app, err := p.api.SetApplicationStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, apierr.ErrConflict) {
			return models.Application{}, fmt.Errorf("application %d: %w: %w", id, lifecycle.ErrInvalidTransition, err)
		}
		return models.Application{}, err
	}
	if p.session.Epoch() != epoch {
		return app, ErrStale
	}
	if err := p.tracker.Observe(app); err != nil {
		p.log.Warn("track reviewed application", "application_id", id, "error", err)
	}
	p.log.Info("application reviewed", "application_id", id, "status", app.Status)
	return app, nil
}
