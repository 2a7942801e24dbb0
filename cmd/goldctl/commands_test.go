package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/client"
	"github.com/IVANFROL/reklama-oleg/internal/lifecycle"
	"github.com/IVANFROL/reklama-oleg/internal/portal"
	"github.com/IVANFROL/reklama-oleg/internal/sandbox"
	"github.com/IVANFROL/reklama-oleg/internal/session"
	"github.com/IVANFROL/reklama-oleg/internal/validate"
)

type cli struct {
	t       *testing.T
	url     string
	backend *sandbox.Server
	slot    *session.MemorySlot
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	backend := sandbox.New(sandbox.Options{BcryptCost: bcrypt.MinCost})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return &cli{t: t, url: srv.URL, backend: backend, slot: session.NewMemorySlot()}
}

// exec runs one command the way a fresh process would: new portal, session
// restored from the shared slot.
func (c *cli) exec(args ...string) (string, error) {
	c.t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewStore(c.slot, logger)
	cl, err := client.New(c.url, store, client.WithLogger(logger))
	require.NoError(c.t, err)
	var out bytes.Buffer
	a := &app{
		portal: portal.New(cl, store, validate.MustNew(), portal.Options{Logger: logger}),
		out:    &out,
		log:    logger,
	}
	err = a.dispatch(context.Background(), args)
	return out.String(), err
}

func TestRewardAndApplicationFlow(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("register", "--email", "oleg@example.com", "--username", "oleg", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as oleg")

	out, err = c.exec("view", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "+10.00 for ad 1, balance 10.00")

	_, err = c.exec("view", "1")
	assert.True(t, errors.Is(err, apierr.ErrConflict), "got %v", err)

	out, err = c.exec("balance")
	require.NoError(t, err)
	assert.Equal(t, "10.00\n", out)

	out, err = c.exec("cost")
	require.NoError(t, err)
	assert.Contains(t, out, "short by 40.00")

	_, err = c.exec("apply", "--title", "Spring sale", "--description", "Banner for the spring sale")
	assert.True(t, errors.Is(err, apierr.ErrInsufficientFunds), "got %v", err)

	acc, err := c.backend.Store().AccountByName("oleg")
	require.NoError(t, err)
	require.NoError(t, c.backend.Store().SetBalance(acc.ID, 60))

	img := filepath.Join(t.TempDir(), "banner.png")
	require.NoError(t, os.WriteFile(img, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...), 0o600))
	out, err = c.exec("apply", "--title", "Spring sale", "--description", "Banner for the spring sale", "--photo", img)
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded banner.png (image")
	assert.Contains(t, out, "application 1 filed (pending), charged 50.00, balance 10.00")

	out, err = c.exec("admin", "reject", "1")
	require.NoError(t, err)
	assert.Equal(t, "application 1 rejected\n", out)

	_, err = c.exec("admin", "approve", "1")
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition), "got %v", err)

	out, err = c.exec("admin", "list", "--status", "rejected")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
	assert.Equal(t, 2, strings.Count(out, "\n"))

	_, err = c.exec("logout")
	require.NoError(t, err)
	_, err = c.exec("whoami")
	assert.True(t, errors.Is(err, apierr.ErrUnauthenticated), "got %v", err)
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)
	_, err := c.exec("register", "--email", "oleg@example.com", "--username", "oleg", "--password", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"dance"}},
		{"missing id", []string{"view"}},
		{"bad id", []string{"view", "abc"}},
		{"unknown flag", []string{"login", "--pin", "1234"}},
		{"admin without action", []string{"admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.exec(tt.args...)
			var ue usageError
			assert.True(t, errors.As(err, &ue), "got %v", err)
		})
	}
}

func TestFlagErrorsNameTheCommand(t *testing.T) {
	c := newCLI(t)
	_, err := c.exec("register", "--email", "oleg@example.com", "--username", "oleg", "--password", "secret1")
	require.NoError(t, err)

	tests := []struct {
		args   []string
		prefix string
	}{
		{[]string{"login", "--pin", "1234"}, "login: "},
		{[]string{"register", "--nickname", "oleg"}, "register: "},
		{[]string{"admin", "list", "--state", "pending"}, "admin list: "},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := c.exec(tt.args...)
			var ue usageError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.True(t, strings.HasPrefix(ue.Error(), tt.prefix), "got %q", ue.Error())
		})
	}
}

func TestDescribe(t *testing.T) {
	fields := apierr.Validation("validate.register", map[string]string{
		"username": "Username must be at least 3 characters",
		"email":    "Enter a valid email",
	})
	assert.Equal(t, "invalid input:\n  email: Enter a valid email\n  username: Username must be at least 3 characters", describe(fields))

	assert.Equal(t, "Ad already viewed today", describe(apierr.New("ads.view", apierr.KindConflict, "Ad already viewed today")))
	assert.Equal(t, "Insufficient balance", describe(apierr.New("applications.create", apierr.KindInsufficientFunds, "")))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestRunFlags(t *testing.T) {
	t.Setenv("REKLAMA_CREDENTIAL_STORE", "memory")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run(context.Background(), []string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: goldctl")

	stderr.Reset()
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))

	stderr.Reset()
	code := run(context.Background(), []string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "dance"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), `unknown command "dance"`)

	stderr.Reset()
	code = run(context.Background(), []string{"--api-url", "localhost", "whoami"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "API_URL")
}
