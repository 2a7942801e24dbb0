// Command goldctl is a terminal client for the rewards platform: sign in,
// watch ads for rewards, file ad applications and review them as an admin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/client"
	"github.com/IVANFROL/reklama-oleg/internal/config"
	"github.com/IVANFROL/reklama-oleg/internal/lifecycle"
	"github.com/IVANFROL/reklama-oleg/internal/logging"
	"github.com/IVANFROL/reklama-oleg/internal/portal"
	"github.com/IVANFROL/reklama-oleg/internal/session"
	"github.com/IVANFROL/reklama-oleg/internal/validate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("goldctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	envFile := fs.String("env-file", ".env", "dotenv file to read before the environment")
	apiURL := fs.String("api-url", "", "backend base url (overrides "+config.EnvPrefix+"_API_URL)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: goldctl [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", commandHelp())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(stderr, "goldctl:", err)
		return 1
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "goldctl:", err)
		return 1
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "goldctl:", err)
		return 1
	}

	p, closeSlot, err := buildPortal(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, "goldctl:", err)
		return 1
	}
	defer closeSlot()

	a := &app{portal: p, out: stdout, log: logger}
	if err := a.dispatch(ctx, fs.Args()); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(stderr, "goldctl:", ue.Error())
			return 2
		}
		fmt.Fprintln(stderr, "goldctl:", describe(err))
		return 1
	}
	return 0
}

// buildPortal wires the credential slot, the HTTP client and the portal.
func buildPortal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*portal.Portal, func(), error) {
	slot, closeSlot, err := openSlot(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := session.NewStore(slot, logger)
	c, err := client.New(cfg.APIURL, store,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithMaxUploadBytes(cfg.UploadMaxBytes),
		client.WithLogger(logger),
	)
	if err != nil {
		closeSlot()
		return nil, nil, err
	}
	p := portal.New(c, store, validate.MustNew(), portal.Options{
		DefaultCost: cfg.ApplicationCost,
		Logger:      logger,
	})
	return p, closeSlot, nil
}

func openSlot(ctx context.Context, cfg *config.Config) (session.Slot, func(), error) {
	noop := func() {}
	switch cfg.CredentialStore {
	case config.StoreRedis:
		rdb, err := session.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisSlot(rdb, cfg.CredentialSlot), func() { rdb.Close() }, nil
	case config.StoreMemory:
		return session.NewMemorySlot(), noop, nil
	default:
		return session.NewFileSlot(cfg.CredentialPath, cfg.CredentialSlot), noop, nil
	}
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	if fields := apierr.FieldErrors(err); len(fields) > 0 {
		msg := "invalid input:"
		for _, name := range sortedKeys(fields) {
			msg += fmt.Sprintf("\n  %s: %s", name, fields[name])
		}
		return msg
	}
	var e *apierr.Error
	if errors.As(err, &e) && !errors.Is(err, lifecycle.ErrInvalidTransition) {
		return apierr.Message(err, err.Error())
	}
	return err.Error()
}
