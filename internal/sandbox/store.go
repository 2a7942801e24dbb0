package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

var (
	ErrDuplicateUsername   = errors.New("username already registered")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrUserNotFound        = errors.New("user not found")
	ErrAdNotFound          = errors.New("ad not found")
	ErrAlreadyViewed       = errors.New("ad already viewed today")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyReviewed     = errors.New("application already reviewed")
)

// account is a user row with its password hash.
type account struct {
	models.Identity
	passwordHash string
}

type viewKey struct {
	userID int64
	adID   int64
	day    string
}

type storedFile struct {
	contentType string
	data        []byte
}

// Store is the in-memory state of the sandbox backend.
type Store struct {
	mu       sync.Mutex
	accounts map[int64]*account
	byName   map[string]int64
	byEmail  map[string]int64
	ads      map[int64]models.Ad
	views    map[viewKey]struct{}
	apps     map[int64]*models.Application
	files    map[string]storedFile
	nextID   map[string]int64
	now      func() time.Time
}

func NewStore(ads []models.Ad, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		accounts: make(map[int64]*account),
		byName:   make(map[string]int64),
		byEmail:  make(map[string]int64),
		ads:      make(map[int64]models.Ad),
		views:    make(map[viewKey]struct{}),
		apps:     make(map[int64]*models.Application),
		files:    make(map[string]storedFile),
		nextID:   make(map[string]int64),
		now:      now,
	}
	for _, ad := range ads {
		if ad.ID == 0 {
			ad.ID = s.id("ad")
		} else if ad.ID > s.nextID["ad"] {
			s.nextID["ad"] = ad.ID
		}
		if ad.CreatedAt == "" {
			ad.CreatedAt = s.stamp()
		}
		s.ads[ad.ID] = ad
	}
	return s
}

// id must be called with mu held or during construction.
func (s *Store) id(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Store) stamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000000")
}

func (s *Store) CreateAccount(email, username, passwordHash string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return models.Identity{}, ErrDuplicateUsername
	}
	if _, ok := s.byEmail[strings.ToLower(email)]; ok {
		return models.Identity{}, ErrDuplicateEmail
	}
	a := &account{
		Identity: models.Identity{
			ID:        s.id("user"),
			Email:     email,
			Username:  username,
			IsActive:  true,
			CreatedAt: s.stamp(),
		},
		passwordHash: passwordHash,
	}
	s.accounts[a.ID] = a
	s.byName[username] = a.ID
	s.byEmail[strings.ToLower(email)] = a.ID
	return a.Identity, nil
}

// Credentials returns the identity and password hash for username.
func (s *Store) Credentials(username string) (models.Identity, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return models.Identity{}, "", ErrUserNotFound
	}
	a := s.accounts[id]
	return a.Identity, a.passwordHash, nil
}

func (s *Store) AccountByName(username string) (models.Identity, error) {
	id, _, err := s.Credentials(username)
	return id, err
}

// SetBalance overwrites a balance. Used to seed test scenarios.
func (s *Store) SetBalance(userID int64, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return ErrUserNotFound
	}
	a.Balance = balance
	return nil
}

func (s *Store) ActiveAds() []models.Ad {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Ad, 0, len(s.ads))
	for _, ad := range s.ads {
		if ad.IsActive {
			out = append(out, ad)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ViewAd credits the reward of adID to userID, once per ad per UTC day.
func (s *Store) ViewAd(userID, adID int64) (models.AdView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return models.AdView{}, ErrUserNotFound
	}
	ad, ok := s.ads[adID]
	if !ok || !ad.IsActive {
		return models.AdView{}, ErrAdNotFound
	}
	key := viewKey{userID: userID, adID: adID, day: s.now().UTC().Format("2006-01-02")}
	if _, seen := s.views[key]; seen {
		return models.AdView{}, ErrAlreadyViewed
	}
	s.views[key] = struct{}{}
	a.Balance += ad.RewardAmount
	return models.AdView{
		ID:           s.id("view"),
		UserID:       userID,
		AdID:         adID,
		ViewedAt:     s.stamp(),
		RewardEarned: ad.RewardAmount,
	}, nil
}

// CreateApplication debits cost and files draft as pending. The balance check
// and the debit happen under one lock.
func (s *Store) CreateApplication(userID int64, draft models.ApplicationDraft, cost float64) (models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return models.Application{}, ErrUserNotFound
	}
	if a.Balance < cost {
		return models.Application{}, fmt.Errorf("%w: need %g, have %g", ErrInsufficientFunds, cost, a.Balance)
	}
	a.Balance -= cost
	app := &models.Application{
		ID:          s.id("application"),
		UserID:      userID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      models.StatusPending,
		Cost:        cost,
		PhotoURL:    draft.PhotoURL,
		VideoURL:    draft.VideoURL,
		CreatedAt:   s.stamp(),
	}
	s.apps[app.ID] = app
	return *app, nil
}

// Applications lists applications of userID, or all of them when userID is 0.
func (s *Store) Applications(userID int64) []models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Application, 0)
	for _, app := range s.apps {
		if userID == 0 || app.UserID == userID {
			out = append(out, *app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus reviews a pending application. Reviewed applications are final.
func (s *Store) SetStatus(id int64, status models.Status) (models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return models.Application{}, ErrApplicationNotFound
	}
	if app.Status.Terminal() && app.Status != status {
		return *app, ErrAlreadyReviewed
	}
	app.Status = status
	return *app, nil
}

func (s *Store) SaveFile(name, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = storedFile{contentType: contentType, data: data}
}

func (s *Store) File(name string) (string, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	return f.contentType, f.data, ok
}

func (s *Store) Account(id int64) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.Identity{}, ErrUserNotFound
	}
	return a.Identity, nil
}
