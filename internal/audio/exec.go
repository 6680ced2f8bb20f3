package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultStartGrace is how long ExecPlayer waits for the player process to
// fail before treating playback as started.
const DefaultStartGrace = 300 * time.Millisecond

// ExecPlayer plays clips by running an external command with the clip path
// appended as the last argument. The literal {volume} in any argument is
// replaced with the clip volume.
type ExecPlayer struct {
	command    []string
	startGrace time.Duration
	tempDir    string
	logger     log.Logger
}

// NewExecPlayer creates an ExecPlayer from a whitespace separated command
// line such as "aplay -q" or "mpv --no-video --volume={volume}".
func NewExecPlayer(cmdline string, startGrace time.Duration, logger log.Logger) (*ExecPlayer, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("player command is empty")
	}
	if startGrace <= 0 {
		startGrace = DefaultStartGrace
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &ExecPlayer{
		command:    fields,
		startGrace: startGrace,
		tempDir:    os.TempDir(),
		logger:     logger,
	}, nil
}

// Play writes the clip to a temp file and starts the player. It returns nil
// when the process is still running or exited cleanly once the start grace
// has elapsed. The temp file is removed when the process exits.
func (p *ExecPlayer) Play(ctx context.Context, s Sound) error {
	f, err := os.CreateTemp(p.tempDir, "klaxon-*."+string(s.Format))
	if err != nil {
		return fmt.Errorf("create temp clip: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(s.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write temp clip: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close temp clip: %w", err)
	}

	vol := strconv.FormatFloat(s.Volume*100, 'f', 0, 64)
	args := make([]string, 0, len(p.command))
	for _, a := range p.command[1:] {
		args = append(args, strings.ReplaceAll(a, "{volume}", vol))
	}
	args = append(args, path)

	// Playback outlives the caller's request; only start is bounded by ctx.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), p.command[0], args...) //nolint:gosec // G204: command comes from trusted config
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("start %s: %w", p.command[0], err)
	}

	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = os.Remove(path)
		done <- err
	}()

	timer := time.NewTimer(p.startGrace)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s rejected %s: %w", p.command[0], s.Name, err)
		}
		return nil
	case <-timer.C:
		go func() {
			if err := <-done; err != nil {
				p.logger.Warn(ctx, "player exited with error after start", "sound", s.Name, "err", err.Error())
			}
		}()
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}
