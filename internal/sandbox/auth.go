package sandbox

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

var ErrInvalidCredentials = errors.New("incorrect username or password")

// authService issues and checks HS256 tokens whose subject is the username.
type authService struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

func (a *authService) Register(req models.RegisterRequest) (models.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return models.Identity{}, err
	}
	return a.store.CreateAccount(req.Email, req.Username, string(hash))
}

func (a *authService) Login(username, password string) (string, error) {
	_, hash, err := a.store.Credentials(username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.issueToken(username)
}

func (a *authService) issueToken(username string) (string, error) {
	now := a.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(a.secret)
}

// Authenticate resolves a bearer token to the account it names.
func (a *authService) Authenticate(token string) (models.Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return models.Identity{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return models.Identity{}, errors.New("invalid token")
	}
	return a.store.AccountByName(c.Subject)
}
