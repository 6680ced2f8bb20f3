// Package audio plays the station alert tone through an ordered list of
// sound sources, falling back to the next source when one cannot play.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/klaxon/internal/audio")

// DefaultVolume is the playback volume used when none is configured.
const DefaultVolume = 0.8

// Tier identifies a position in the fallback chain.
type Tier int

const (
	TierPrimary Tier = iota
	TierSecondary
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierFallback:
		return "fallback"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Kind classifies why a tier failed.
type Kind string

const (
	KindNotFound Kind = "not_found"
	KindDecode   Kind = "decode"
	KindRejected Kind = "rejected"
)

// ErrNotFound is returned by loaders when the clip does not exist.
var ErrNotFound = errors.New("sound not found")

// Error describes the failure of a single tier.
type Error struct {
	Tier Tier
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("audio %s tier: %s: %v", e.Tier, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format is the container format detected from a clip's header.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Sound is a decoded-enough clip ready to hand to a Player.
type Sound struct {
	Name   string
	Format Format
	Data   []byte
	Volume float64
}

// Player starts playback of a clip and reports whether it started.
type Player interface {
	Play(ctx context.Context, s Sound) error
}

// Loader fetches the raw bytes behind a sound URI.
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

// Hooks observe tier attempts. Nil funcs are skipped.
type Hooks struct {
	OnAttempt func(tier Tier, outcome string, duration time.Duration)
	OnSilent  func()
}

// Options configures an Alerter.
type Options struct {
	// Primary and Secondary are URIs of recorded tones. An empty URI skips
	// the tier.
	Primary   string
	Secondary string
	Volume    float64
	Loader    Loader
	Player    Player
	Logger    log.Logger
	Hooks     Hooks
}

type tierSource struct {
	tier Tier
	uri  string
}

// Alerter plays the alert tone, first success wins.
type Alerter struct {
	tiers  []tierSource
	volume float64
	loader Loader
	player Player
	logger log.Logger
	hooks  Hooks
}

// New creates an Alerter. The fallback tier is always present and uses the
// tone embedded in the binary.
func New(opts Options) *Alerter {
	if opts.Player == nil {
		panic(xerrors.New("audio player is required"))
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Loader == nil {
		opts.Loader = NewLoader("", nil)
	}
	if opts.Volume <= 0 || opts.Volume > 1 {
		opts.Volume = DefaultVolume
	}

	a := &Alerter{
		volume: opts.Volume,
		loader: opts.Loader,
		player: opts.Player,
		logger: opts.Logger,
		hooks:  opts.Hooks,
	}
	if opts.Primary != "" {
		a.tiers = append(a.tiers, tierSource{tier: TierPrimary, uri: opts.Primary})
	}
	if opts.Secondary != "" {
		a.tiers = append(a.tiers, tierSource{tier: TierSecondary, uri: opts.Secondary})
	}
	a.tiers = append(a.tiers, tierSource{tier: TierFallback, uri: FallbackToneURI})
	return a
}

// Play walks the tiers in order and stops at the first one whose playback
// starts. Failures are logged; Play never returns an error and never blocks
// beyond the player's start window.
func (a *Alerter) Play(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "audio.play")
	defer span.End()

	for _, ts := range a.tiers {
		start := time.Now()
		err := a.try(ctx, ts)
		if err == nil {
			a.observe(ts.tier, "played", time.Since(start))
			span.SetAttributes(attribute.String("klaxon.audio.tier", ts.tier.String()))
			return
		}

		var aerr *Error
		outcome := "error"
		if errors.As(err, &aerr) {
			outcome = string(aerr.Kind)
		}
		a.observe(ts.tier, outcome, time.Since(start))
		span.AddEvent("tier failed", trace.WithAttributes(
			attribute.String("klaxon.audio.tier", ts.tier.String()),
			attribute.String("klaxon.audio.outcome", outcome),
		))
		a.logger.Warn(ctx, "alert sound tier failed", "tier", ts.tier.String(), "kind", outcome, "err", err.Error())

		if ctx.Err() != nil {
			break
		}
	}

	err := errors.New("all sound tiers failed")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if a.hooks.OnSilent != nil {
		a.hooks.OnSilent()
	}
	a.logger.Error(ctx, err, "alert sound could not be played")
}

func (a *Alerter) try(ctx context.Context, ts tierSource) error {
	data, err := a.loader.Load(ctx, ts.uri)
	if err != nil {
		kind := KindRejected
		if errors.Is(err, ErrNotFound) {
			kind = KindNotFound
		}
		return &Error{Tier: ts.tier, Kind: kind, Err: err}
	}

	format, err := Sniff(data)
	if err != nil {
		return &Error{Tier: ts.tier, Kind: KindDecode, Err: err}
	}

	s := Sound{Name: ts.uri, Format: format, Data: data, Volume: a.volume}
	if ts.tier == TierFallback {
		s.Name = "embedded-tone"
	}
	if err := a.player.Play(ctx, s); err != nil {
		return &Error{Tier: ts.tier, Kind: KindRejected, Err: err}
	}
	return nil
}

func (a *Alerter) observe(t Tier, outcome string, d time.Duration) {
	if a.hooks.OnAttempt != nil {
		a.hooks.OnAttempt(t, outcome, d)
	}
}
