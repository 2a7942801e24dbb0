// Package sandbox is an in-memory implementation of the rewards backend's REST
// API. It backs the integration tests and cmd/sandbox.
package sandbox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/IVANFROL/reklama-oleg/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type Options struct {
	Secret          []byte
	TokenTTL        time.Duration // default 30 minutes
	Admins          []string      // usernames allowed on /admin; empty means every user
	Ads             []models.Ad   // nil means SampleAds
	ApplicationCost float64       // default 50
	MaxUploadBytes  int64         // default 50 MiB
	// LegacyStatus answers duplicate views, insufficient funds, duplicate
	// registrations and rejected media with 400 instead of 409/402/415.
	LegacyStatus bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Server is an http.Handler serving the backend API.
type Server struct {
	store   *Store
	auth    *authService
	opts    Options
	admins  map[string]bool
	handler http.Handler
	log     *slog.Logger
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	if opts.ApplicationCost == 0 {
		opts.ApplicationCost = models.DefaultApplicationCost
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("sandbox-secret")
	}
	if opts.Ads == nil {
		opts.Ads = SampleAds()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	store := NewStore(opts.Ads, opts.Now)
	s := &Server{
		store: store,
		auth: &authService{
			store:  store,
			secret: opts.Secret,
			ttl:    opts.TokenTTL,
			cost:   opts.BcryptCost,
			now:    opts.Now,
		},
		opts:   opts,
		admins: make(map[string]bool),
		log:    log,
	}
	for _, a := range opts.Admins {
		s.admins[a] = true
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Store exposes the state for seeding and inspection in tests.
func (s *Server) Store() *Store { return s.store }

func (s *Server) isAdmin(username string) bool {
	return len(s.admins) == 0 || s.admins[username]
}

// status returns legacy when LegacyStatus is set, otherwise explicit.
func (s *Server) status(explicit int) int {
	if s.opts.LegacyStatus {
		return http.StatusBadRequest
	}
	return explicit
}
