package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          5,
		ShutdownBudgetSeconds: 30,
		APIPort:               8080,
		BackendURL:            "https://alerts.example.org/api",
		StationID:             "station-7",
		AlertKind:             "fire",
		PollInterval:          10 * time.Second,
		PushSecretHeader:      "X-Klaxon-Push-Secret",
		PlayerCmd:             "aplay -q",
		Volume:                0.8,
		StartGrace:            300 * time.Millisecond,
		ToastDuration:         5 * time.Second,
		JournalCapacity:       1000,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 5 {
		t.Errorf("DrainSeconds = %d, want 5", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 30 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 30", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", c.PollInterval)
	}
	if c.AlertKind != "fire" {
		t.Errorf("AlertKind = %q, want fire", c.AlertKind)
	}
	if c.SoundPrimary != "/alert-sound.mp3" || c.SoundSecondary != "/alert-sound.wav" {
		t.Errorf("sounds = %q, %q", c.SoundPrimary, c.SoundSecondary)
	}
	if c.Volume != 0.8 {
		t.Errorf("Volume = %v, want 0.8", c.Volume)
	}
	if c.ToastDuration != 5*time.Second {
		t.Errorf("ToastDuration = %v, want 5s", c.ToastDuration)
	}
	if c.PushSecretHeader != "X-Klaxon-Push-Secret" {
		t.Errorf("PushSecretHeader = %q", c.PushSecretHeader)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-backend-url", "http://backend:3000/api",
		"-station-id", "st-1",
		"-poll-interval", "30s",
		"-volume", "0.5",
		"-player-cmd", "mpv --no-video",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 || c.ShutdownBudgetSeconds != 120 || c.APIPort != 9090 {
		t.Errorf("ints = %d/%d/%d", c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort)
	}
	if c.BackendURL != "http://backend:3000/api" {
		t.Errorf("BackendURL = %q", c.BackendURL)
	}
	if c.StationID != "st-1" {
		t.Errorf("StationID = %q", c.StationID)
	}
	if c.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", c.PollInterval)
	}
	if c.Volume != 0.5 {
		t.Errorf("Volume = %v", c.Volume)
	}
	if c.PlayerCmd != "mpv --no-video" {
		t.Errorf("PlayerCmd = %q", c.PlayerCmd)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mod func(*Config)) Config {
		c := validBase()
		mod(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{name: "defaults are valid", cfg: validBase()},
		{name: "minimum valid values", cfg: with(func(c *Config) {
			c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 1, 2, 1
			c.PollInterval, c.Volume, c.StartGrace, c.ToastDuration, c.JournalCapacity = time.Second, 0.01, 0, time.Second, 1
		})},
		{name: "maximum valid values", cfg: with(func(c *Config) {
			c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 299, 300, 65535
			c.PollInterval, c.Volume, c.StartGrace, c.ToastDuration, c.JournalCapacity = 10*time.Minute, 1, 5*time.Second, time.Minute, 100000
		})},
		{name: "drain zero", cfg: with(func(c *Config) { c.DrainSeconds = 0 }), wantErr: true, errSubstr: []string{"DRAIN_SECONDS"}},
		{name: "drain above max", cfg: with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }), wantErr: true, errSubstr: []string{"DRAIN_SECONDS"}},
		{name: "budget above max", cfg: with(func(c *Config) { c.ShutdownBudgetSeconds = 301 }), wantErr: true, errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"}},
		{name: "budget equals drain", cfg: with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 60, 60 }), wantErr: true, errSubstr: []string{"must be greater than"}},
		{name: "port zero", cfg: with(func(c *Config) { c.APIPort = 0 }), wantErr: true, errSubstr: []string{"HTTP_PORT"}},
		{name: "port above max", cfg: with(func(c *Config) { c.APIPort = 65536 }), wantErr: true, errSubstr: []string{"HTTP_PORT"}},
		{name: "missing backend", cfg: with(func(c *Config) { c.BackendURL = "" }), wantErr: true, errSubstr: []string{"BACKEND_URL is required"}},
		{name: "relative backend", cfg: with(func(c *Config) { c.BackendURL = "/api" }), wantErr: true, errSubstr: []string{"invalid BACKEND_URL"}},
		{name: "ftp backend", cfg: with(func(c *Config) { c.BackendURL = "ftp://host/api" }), wantErr: true, errSubstr: []string{"invalid BACKEND_URL"}},
		{name: "missing station", cfg: with(func(c *Config) { c.StationID = "" }), wantErr: true, errSubstr: []string{"STATION_ID"}},
		{name: "missing kind", cfg: with(func(c *Config) { c.AlertKind = "" }), wantErr: true, errSubstr: []string{"ALERT_KIND"}},
		{name: "poll too fast", cfg: with(func(c *Config) { c.PollInterval = 500 * time.Millisecond }), wantErr: true, errSubstr: []string{"POLL_INTERVAL"}},
		{name: "poll too slow", cfg: with(func(c *Config) { c.PollInterval = time.Hour }), wantErr: true, errSubstr: []string{"POLL_INTERVAL"}},
		{name: "secret without header", cfg: with(func(c *Config) { c.PushSecret, c.PushSecretHeader = "s", "" }), wantErr: true, errSubstr: []string{"PUSH_SECRET_HEADER"}},
		{name: "empty player", cfg: with(func(c *Config) { c.PlayerCmd = "" }), wantErr: true, errSubstr: []string{"PLAYER_CMD"}},
		{name: "volume zero", cfg: with(func(c *Config) { c.Volume = 0 }), wantErr: true, errSubstr: []string{"VOLUME"}},
		{name: "volume above one", cfg: with(func(c *Config) { c.Volume = 1.5 }), wantErr: true, errSubstr: []string{"VOLUME"}},
		{name: "volume NaN", cfg: with(func(c *Config) { c.Volume = math.NaN() }), wantErr: true, errSubstr: []string{"VOLUME"}},
		{name: "grace negative", cfg: with(func(c *Config) { c.StartGrace = -time.Millisecond }), wantErr: true, errSubstr: []string{"START_GRACE"}},
		{name: "toast too short", cfg: with(func(c *Config) { c.ToastDuration = 100 * time.Millisecond }), wantErr: true, errSubstr: []string{"TOAST_DURATION"}},
		{name: "slack http", cfg: with(func(c *Config) { c.SlackWebhookURL = "http://hooks.slack.com/x" }), wantErr: true, errSubstr: []string{"SLACK_WEBHOOK_URL"}},
		{name: "slack https", cfg: with(func(c *Config) { c.SlackWebhookURL = "https://hooks.slack.com/x" })},
		{name: "journal zero", cfg: with(func(c *Config) { c.JournalCapacity = 0 }), wantErr: true, errSubstr: []string{"JOURNAL_CAPACITY"}},
		{
			name:      "all fields invalid",
			cfg:       Config{},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "BACKEND_URL", "STATION_ID", "POLL_INTERVAL", "PLAYER_CMD", "VOLUME", "TOAST_DURATION", "JOURNAL_CAPACITY"},
		},
		{
			name: "extreme negative values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = math.MinInt32, math.MinInt32, math.MinInt32
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	seeds := []struct {
		drain, budget, port int
		backend, station    string
		volume              float64
	}{
		{5, 30, 8080, "https://alerts.example.org/api", "st", 0.8},
		{1, 2, 1, "http://h", "s", 1},
		{299, 300, 65535, "http://h", "s", 0.01},
		{0, 0, 0, "", "", 0},
		{-1, -1, -1, "::", "", -1},
		{300, 300, 65535, "http://h", "s", 0.5},
		{150, 100, 8080, "https://h", "s", 2},
		{math.MinInt32, math.MinInt32, math.MinInt32, "", "", math.Inf(1)},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", math.Inf(-1)},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.backend, s.station, s.volume)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port int, backend, station string, volume float64) {
		c := validBase()
		c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = drain, budget, port
		c.BackendURL, c.StationID, c.Volume = backend, station, volume
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		stationOK := station != ""
		volumeOK := volume > 0 && volume <= 1

		// Only the invalid direction is checked for the URL; parsing rules are url.Parse's.
		if !(drainOK && budgetOK && portOK && crossOK && stationOK && volumeOK) && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
		if backend == "" && err == nil {
			t.Error("expected error for empty backend URL")
		}
	})
}
