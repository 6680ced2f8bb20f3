package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/audio"
	"github.com/linnemanlabs/klaxon/internal/authmw"
	"github.com/linnemanlabs/klaxon/internal/engine"
	"github.com/linnemanlabs/klaxon/internal/journal/memjournal"
)

// Config holds the station's application settings. It satisfies the
// common cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	BackendURL   string
	StationID    string
	BackendToken string
	AlertKind    string
	PollInterval time.Duration

	APIToken         string
	PushSecret       string
	PushSecretHeader string

	SoundBaseURL    string
	SoundPrimary    string
	SoundSecondary  string
	PlayerCmd       string
	Volume          float64
	StartGrace      time.Duration
	ToastDuration   time.Duration
	SlackWebhookURL string

	JournalCapacity int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 5, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.StringVar(&c.BackendURL, "backend-url", "", "alert backend base URL, e.g. https://alerts.example.org/api")
	fs.StringVar(&c.StationID, "station-id", "", "station identifier used for the alert snapshot")
	fs.StringVar(&c.BackendToken, "backend-token", "", "Bearer token for the alert backend")
	fs.StringVar(&c.AlertKind, "alert-kind", alert.DefaultKind, "alert type to poll for")
	fs.DurationVar(&c.PollInterval, "poll-interval", engine.DefaultPollInterval, "interval between backend polls (1s..10m)")

	fs.StringVar(&c.APIToken, "api-token", "", "Bearer token required on the station API (empty = open)")
	fs.StringVar(&c.PushSecret, "push-secret", "", "shared secret required on push deliveries (empty = open)")
	fs.StringVar(&c.PushSecretHeader, "push-secret-header", authmw.DefaultSecretHeader, "header carrying the push shared secret")

	fs.StringVar(&c.SoundBaseURL, "sound-base-url", "", "base URL or directory relative sound paths resolve against")
	fs.StringVar(&c.SoundPrimary, "sound-primary", "/alert-sound.mp3", "primary alert sound (empty skips the tier)")
	fs.StringVar(&c.SoundSecondary, "sound-secondary", "/alert-sound.wav", "secondary alert sound (empty skips the tier)")
	fs.StringVar(&c.PlayerCmd, "player-cmd", "aplay -q", "command that plays a sound file; {volume} expands to 0..100")
	fs.Float64Var(&c.Volume, "volume", audio.DefaultVolume, "playback volume (>0..1)")
	fs.DurationVar(&c.StartGrace, "start-grace", audio.DefaultStartGrace, "how long the player must survive to count as started (0..5s)")
	fs.DurationVar(&c.ToastDuration, "toast-duration", engine.DefaultToastDuration, "how long toasts stay visible (1s..60s)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for alert toasts")

	fs.IntVar(&c.JournalCapacity, "journal-capacity", memjournal.DefaultCapacity, "entries kept by the in-memory journal (1..100000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Backend
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	} else if u, err := url.Parse(c.BackendURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid BACKEND_URL %q (must be an absolute http(s) URL)", c.BackendURL))
	}
	if c.StationID == "" {
		errs = append(errs, errors.New("STATION_ID is required"))
	}
	if c.AlertKind == "" {
		errs = append(errs, errors.New("ALERT_KIND is required"))
	}
	if c.PollInterval < time.Second || c.PollInterval > 10*time.Minute {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL %s (must be 1s..10m)", c.PollInterval))
	}

	if c.PushSecret != "" && c.PushSecretHeader == "" {
		errs = append(errs, errors.New("PUSH_SECRET_HEADER is required when PUSH_SECRET is set"))
	}

	// Sound and toast
	if c.PlayerCmd == "" {
		errs = append(errs, errors.New("PLAYER_CMD is required"))
	}
	if !(c.Volume > 0 && c.Volume <= 1) {
		errs = append(errs, fmt.Errorf("invalid VOLUME %v (must be >0 and <=1)", c.Volume))
	}
	if c.StartGrace < 0 || c.StartGrace > 5*time.Second {
		errs = append(errs, fmt.Errorf("invalid START_GRACE %s (must be 0..5s)", c.StartGrace))
	}
	if c.ToastDuration < time.Second || c.ToastDuration > time.Minute {
		errs = append(errs, fmt.Errorf("invalid TOAST_DURATION %s (must be 1s..60s)", c.ToastDuration))
	}
	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" {
			errs = append(errs, errors.New("invalid SLACK_WEBHOOK_URL (must be https)"))
		}
	}

	if c.JournalCapacity < 1 || c.JournalCapacity > 100000 {
		errs = append(errs, fmt.Errorf("invalid JOURNAL_CAPACITY %d (must be 1..100000)", c.JournalCapacity))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
