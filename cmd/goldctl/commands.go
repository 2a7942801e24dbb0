package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
	"github.com/IVANFROL/reklama-oleg/internal/portal"
)

type usageError string

func (e usageError) Error() string { return string(e) }

type command struct {
	name    string
	usage   string
	session bool // restore the stored session first
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"register", "--email E --username U --password P [--confirm P]", false, (*app).register},
	{"login", "--username U --password P", false, (*app).login},
	{"logout", "", true, (*app).logout},
	{"whoami", "", true, (*app).whoami},
	{"balance", "", true, (*app).balance},
	{"ads", "", true, (*app).ads},
	{"view", "<ad-id>", true, (*app).view},
	{"cost", "", true, (*app).cost},
	{"apply", "--title T --description D [--photo FILE] [--video FILE]", true, (*app).apply},
	{"applications", "", true, (*app).applications},
	{"admin", "list [--status S] | approve <id> | reject <id>", true, (*app).admin},
}

func commandHelp() string {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-13s %s\n", c.name, c.usage)
	}
	return b.String()
}

type app struct {
	portal *portal.Portal
	out    io.Writer
	log    *slog.Logger
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if c.session {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
		}
		return c.run(a, ctx, args[1:])
	}
	return usageError(fmt.Sprintf("unknown command %q", args[0]))
}

func (a *app) requireSession(ctx context.Context) error {
	if _, ok := a.portal.Identity(); ok {
		return nil
	}
	_, ok, err := a.portal.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.New("session", apierr.KindUnauthenticated, "not signed in, run goldctl login")
	}
	return nil
}

// flagSet is a command's flags together with the command name used in
// usage errors.
type flagSet struct {
	*pflag.FlagSet
	name string
}

func flags(name string) *flagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &flagSet{FlagSet: fs, name: name}
}

func (fs *flagSet) parse(args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError(fs.name + ": " + err.Error())
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flags("register")
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "user name")
	password := fs.String("password", "", "password")
	confirm := fs.String("confirm", "", "repeated password")
	if err := fs.parse(args); err != nil {
		return err
	}
	if !fs.Changed("confirm") {
		*confirm = *password
	}
	id, err := a.portal.Register(ctx, models.RegisterRequest{
		Email:    *email,
		Username: *username,
		Password: *password,
	}, *confirm)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered and signed in as %s\n", id.Username)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flags("login")
	username := fs.String("username", "", "user name")
	password := fs.String("password", "", "password")
	if err := fs.parse(args); err != nil {
		return err
	}
	id, err := a.portal.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s, balance %.2f\n", id.Username, a.portal.Balance())
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	if err := a.portal.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) whoami(_ context.Context, _ []string) error {
	id, _ := a.portal.Identity()
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", id.ID)
	fmt.Fprintf(tw, "username\t%s\n", id.Username)
	fmt.Fprintf(tw, "email\t%s\n", id.Email)
	fmt.Fprintf(tw, "balance\t%.2f\n", a.portal.Balance())
	fmt.Fprintf(tw, "member since\t%s\n", id.CreatedAt)
	return tw.Flush()
}

func (a *app) balance(ctx context.Context, _ []string) error {
	if err := a.portal.Refresh(ctx, nil); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%.2f\n", a.portal.Balance())
	return nil
}

func (a *app) ads(ctx context.Context, _ []string) error {
	v := a.portal.OpenView()
	defer v.Close()
	if err := a.portal.Refresh(ctx, v); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREWARD\tTITLE")
	for _, ad := range v.Ads() {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\n", ad.ID, ad.RewardAmount, ad.Title)
	}
	return tw.Flush()
}

func (a *app) view(ctx context.Context, args []string) error {
	id, err := idArg("view", args)
	if err != nil {
		return err
	}
	view, err := a.portal.ViewAd(ctx, nil, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "+%.2f for ad %d, balance %.2f\n", view.RewardEarned, id, a.portal.Balance())
	return nil
}

func (a *app) cost(ctx context.Context, _ []string) error {
	cost, err := a.portal.ApplicationCost(ctx)
	if err != nil {
		a.log.Warn("cost unavailable, showing the last known value", "error", err)
	}
	fmt.Fprintf(a.out, "application cost %.2f, balance %.2f", cost, a.portal.Balance())
	if adv := a.portal.Advice(cost); !adv.Allowed {
		fmt.Fprintf(a.out, ", short by %.2f", adv.Shortfall)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) apply(ctx context.Context, args []string) error {
	fs := flags("apply")
	title := fs.String("title", "", "application title")
	description := fs.String("description", "", "what the ad is about")
	photo := fs.String("photo", "", "image file to attach")
	video := fs.String("video", "", "video file to attach")
	if err := fs.parse(args); err != nil {
		return err
	}
	draft := models.ApplicationDraft{Title: *title, Description: *description}
	if err := a.portal.Validator().Application(draft); err != nil {
		return err
	}

	if cost, err := a.portal.ApplicationCost(ctx); err == nil {
		if adv := a.portal.Advice(cost); !adv.Allowed {
			fmt.Fprintf(a.out, "warning: balance %.2f may not cover the cost %.2f\n", a.portal.Balance(), cost)
		}
	}
	for field, path := range map[string]string{"photo": *photo, "video": *video} {
		if path == "" {
			continue
		}
		url, err := a.upload(ctx, field, path)
		if err != nil {
			return err
		}
		if field == "photo" {
			draft.PhotoURL = &url
		} else {
			draft.VideoURL = &url
		}
	}

	filed, err := a.portal.SubmitApplication(ctx, nil, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "application %d filed (%s), charged %.2f, balance %.2f\n",
		filed.ID, filed.Status, filed.EffectiveCost(), a.portal.Balance())
	return nil
}

func (a *app) upload(ctx context.Context, field, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	up, err := a.portal.UploadMedia(ctx, field, filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(a.out, "uploaded %s (%s, %d bytes)\n", filepath.Base(path), up.Type, up.Size)
	return up.URL, nil
}

func (a *app) applications(ctx context.Context, _ []string) error {
	v := a.portal.OpenView()
	defer v.Close()
	if err := a.portal.Refresh(ctx, v); err != nil {
		return err
	}
	return a.printApplications(v.Applications())
}

func (a *app) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("admin: want list, approve or reject")
	}
	switch args[0] {
	case "list":
		fs := flags("admin list")
		status := fs.String("status", "", "pending, approved or rejected")
		if err := fs.parse(args[1:]); err != nil {
			return err
		}
		v := a.portal.OpenView()
		defer v.Close()
		apps, err := a.portal.AdminApplications(ctx, v, models.Status(*status))
		if err != nil {
			return err
		}
		return a.printApplications(apps)
	case "approve", "reject":
		id, err := idArg("admin "+args[0], args[1:])
		if err != nil {
			return err
		}
		to := models.StatusApproved
		if args[0] == "reject" {
			to = models.StatusRejected
		}
		reviewed, err := a.portal.Review(ctx, id, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "application %d %s\n", reviewed.ID, reviewed.Status)
		return nil
	}
	return usageError(fmt.Sprintf("admin: unknown action %q", args[0]))
}

func (a *app) printApplications(apps []models.Application) error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCOST\tTITLE\tCREATED")
	for _, row := range apps {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\n", row.ID, row.Status, row.EffectiveCost(), row.Title, row.CreatedAt)
	}
	return tw.Flush()
}

func idArg(cmd string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(cmd + ": want exactly one id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Sprintf("%s: bad id %q", cmd, args[0]))
	}
	return id, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
