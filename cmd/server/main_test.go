package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/audio"
	vc "github.com/linnemanlabs/klaxon/internal/cfg"
	"github.com/linnemanlabs/klaxon/internal/journal/memjournal"
	"github.com/linnemanlabs/klaxon/internal/notify"
	"github.com/linnemanlabs/klaxon/internal/postgres"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd("READY=1")
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_NoState(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "notify.sock"))

	if err := notifySystemd(); err == nil {
		t.Fatal("expected error with no state")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd("READY=1")
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd("READY=1", "STATUS=polling station st-1"); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	want := "READY=1\nSTATUS=polling station st-1"
	if got := string(buf[:n]); got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

func TestOpenJournal_InMemory(t *testing.T) {
	t.Parallel()

	j, closeFn, err := openJournal(context.Background(), postgres.Config{}, 5, log.Nop())
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	defer closeFn()
	if _, ok := j.(*memjournal.Journal); !ok {
		t.Errorf("journal = %T, want *memjournal.Journal", j)
	}
}

func TestNewToaster(t *testing.T) {
	t.Parallel()

	hub := notify.Nop{}
	if got := newToaster(context.Background(), hub, "", log.Nop()); len(got) != 1 {
		t.Errorf("sinks without slack = %d, want 1", len(got))
	}
	if got := newToaster(context.Background(), hub, "https://hooks.slack.com/services/x", log.Nop()); len(got) != 2 {
		t.Errorf("sinks with slack = %d, want 2", len(got))
	}
}

func TestNewAlerter(t *testing.T) {
	t.Parallel()

	c := vc.Config{PlayerCmd: "aplay -q", Volume: 0.8, SoundPrimary: "/alert-sound.mp3"}
	if _, err := newAlerter(c, log.Nop(), audio.Hooks{}); err != nil {
		t.Fatalf("newAlerter: %v", err)
	}

	c.PlayerCmd = "   "
	if _, err := newAlerter(c, log.Nop(), audio.Hooks{}); err == nil {
		t.Fatal("expected error for empty player command")
	}
}
