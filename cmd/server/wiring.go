package main

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/audio"
	vc "github.com/linnemanlabs/klaxon/internal/cfg"
	"github.com/linnemanlabs/klaxon/internal/journal"
	"github.com/linnemanlabs/klaxon/internal/journal/memjournal"
	"github.com/linnemanlabs/klaxon/internal/journal/pgjournal"
	"github.com/linnemanlabs/klaxon/internal/notify"
	"github.com/linnemanlabs/klaxon/internal/notify/slack"
	"github.com/linnemanlabs/klaxon/internal/postgres"
)

// openJournal picks the Postgres journal when a database is configured and
// the in-memory ring otherwise. The returned func releases the pool.
func openJournal(ctx context.Context, pgCfg postgres.Config, capacity int, L log.Logger) (journal.Journal, func(), error) {
	if !pgCfg.Enabled() {
		L.Info(ctx, "using in-memory journal (no database-url configured)", "capacity", capacity)
		return memjournal.New(capacity), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	j, err := pgjournal.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgjournal init: %w", err)
	}
	L.Info(ctx, "using postgres journal", "max_conns", pgCfg.MaxConns)
	return j, pool.Close, nil
}

func newAlerter(c vc.Config, L log.Logger, hooks audio.Hooks) (*audio.Alerter, error) {
	player, err := audio.NewExecPlayer(c.PlayerCmd, c.StartGrace, L)
	if err != nil {
		return nil, fmt.Errorf("audio player: %w", err)
	}
	return audio.New(audio.Options{
		Primary:   c.SoundPrimary,
		Secondary: c.SoundSecondary,
		Volume:    c.Volume,
		Loader:    audio.NewLoader(c.SoundBaseURL, nil),
		Player:    player,
		Logger:    L,
		Hooks:     hooks,
	}), nil
}

// newToaster fans toasts out to the station event stream and, when a webhook
// is configured, to Slack.
func newToaster(ctx context.Context, hub notify.Toaster, slackURL string, L log.Logger) notify.Multi {
	sinks := notify.Multi{hub}
	if slackURL != "" {
		sinks = append(sinks, slack.New(slackURL, L))
		L.Info(ctx, "toast sink enabled", "type", "slack")
	}
	return sinks
}
