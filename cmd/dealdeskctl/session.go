package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashureev/dealdesk/internal/config"
	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/store"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(22)
	valueStyle = lipgloss.NewStyle().Bold(true)
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

type sessionFlags struct {
	user     string
	backend  string
	dbPath   string
	redisURL string
	timezone string
}

func newSessionCmd() *cobra.Command {
	f := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset a user's session continuity",
	}
	cmd.PersistentFlags().StringVar(&f.user, "user", "", "user id (anon_...)")
	cmd.PersistentFlags().StringVar(&f.backend, "store", "", "session store: sqlite or redis (default $SESSION_STORE)")
	cmd.PersistentFlags().StringVar(&f.dbPath, "db", "", "sqlite path (default $DB_PATH)")
	cmd.PersistentFlags().StringVar(&f.redisURL, "redis-url", "", "redis url (default $REDIS_URL)")
	cmd.PersistentFlags().StringVar(&f.timezone, "tz", "", "timezone for day boundaries (default $TIMEZONE)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored continuity keys and how the next open would be classified",
		RunE: func(c *cobra.Command, _ []string) error {
			return withTracker(c.Context(), f, func(t *continuity.Tracker) error {
				return showSession(c.Context(), c.OutOrStdout(), t, f.user)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear stored continuity so the next open is a first visit",
		RunE: func(c *cobra.Command, _ []string) error {
			return withTracker(c.Context(), f, func(t *continuity.Tracker) error {
				if err := t.Reset(c.Context(), f.user); err != nil {
					return err
				}
				_, err := fmt.Fprintf(c.OutOrStdout(), "session state cleared for %s\n", f.user)
				return err
			})
		},
	})
	return cmd
}

// resolve fills unset flags from the environment configuration.
func (f *sessionFlags) resolve() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.backend != "" {
		cfg.SessionStore = f.backend
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.redisURL != "" {
		cfg.RedisURL = f.redisURL
	}
	if f.timezone != "" {
		cfg.Timezone = f.timezone
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionStore == config.StoreMemory {
		return nil, errors.New("the memory session store lives inside the server process; use sqlite or redis")
	}
	return cfg, nil
}

func withTracker(ctx context.Context, f *sessionFlags, fn func(*continuity.Tracker) error) error {
	cfg, err := f.resolve()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var kv store.KV
	switch cfg.SessionStore {
	case config.StoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rkv, err := store.NewRedisKV(dialCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rkv.Close() }()
		kv = rkv
	default:
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		kv = repo
	}

	return fn(continuity.NewTracker(kv, loc))
}

func showSession(ctx context.Context, w io.Writer, t *continuity.Tracker, userID string) error {
	snap, err := t.Load(ctx, userID)
	if err != nil {
		return err
	}
	next, err := t.Peek(ctx, userID)
	if err != nil {
		return err
	}

	last := "never"
	if snap.LastSessionAt != nil {
		last = snap.LastSessionAt.Format(time.RFC3339)
	}
	checkin := snap.MorningCheckinDate
	if checkin == "" {
		checkin = "none"
	}

	rows := []string{
		row("user", valueStyle.Render(userID)),
		row("last session", valueStyle.Render(last)),
		row("morning check-in", valueStyle.Render(checkin)),
		row("next open", stateStyle.Render(string(next.State))),
		row("time of day", valueStyle.Render(string(next.TimeOfDay))),
		row("resumes at step", valueStyle.Render(fmt.Sprintf("%g", float64(next.InitialStep)))),
	}
	_, err = fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, rows...))
	return err
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}
