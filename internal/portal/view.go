package portal

import (
	"sync"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// View is one screen's worth of fetched data. Results are applied to it only
// while it is open and only if they belong to the session it was opened in.
type View struct {
	mu    sync.Mutex
	open  bool
	epoch uint64
	ident models.Identity
	ads   []models.Ad
	apps  []models.Application
	admin []models.Application
}

// OpenView opens a view bound to the current session.
func (p *Portal) OpenView() *View {
	return &View{open: true, epoch: p.session.Epoch()}
}

// Close marks the view as gone. Requests still in flight for it are discarded
// when they complete.
func (v *View) Close() {
	v.mu.Lock()
	v.open = false
	v.mu.Unlock()
}

func (v *View) Open() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

func (v *View) Identity() models.Identity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ident
}

func (v *View) Ads() []models.Ad {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Ad(nil), v.ads...)
}

func (v *View) Applications() []models.Application {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Application(nil), v.apps...)
}

// AdminApplications is the last admin listing loaded into the view.
func (v *View) AdminApplications() []models.Application {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Application(nil), v.admin...)
}

// update runs fn under the view lock when the view is open and the result
// came from the view's session. A nil view accepts nothing.
func (v *View) update(epoch uint64, fn func(v *View)) error {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open || v.epoch != epoch {
		return ErrStale
	}
	fn(v)
	return nil
}
