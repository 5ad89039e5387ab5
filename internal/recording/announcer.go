package recording

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Announcer speaks a short announcement before a recording starts
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// NopAnnouncer announces nothing
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, string) error { return nil }

// CommandAnnouncer runs a text-to-speech command with the announcement as
// its last argument, e.g. espeak or say
type CommandAnnouncer struct {
	Binary string
	Args   []string
}

// NewCommandAnnouncer returns an announcer for binary, or the platform
// default when binary is empty
func NewCommandAnnouncer(binary string, args ...string) *CommandAnnouncer {
	if binary == "" {
		binary = defaultSpeechBinary(runtime.GOOS)
	}
	return &CommandAnnouncer{Binary: binary, Args: args}
}

func defaultSpeechBinary(goos string) string {
	if goos == "darwin" {
		return "say"
	}
	return "espeak"
}

// Announce blocks until the command has finished speaking or ctx is done
func (a *CommandAnnouncer) Announce(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	args := append(append([]string{}, a.Args...), text)
	cmd := exec.CommandContext(ctx, a.Binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("announce with %s: %w: %s", a.Binary, err, msg)
		}
		return fmt.Errorf("announce with %s: %w", a.Binary, err)
	}
	return nil
}

// SpeakerAnnouncement formats the announcement for the next speaker
func SpeakerAnnouncement(name, constituency string) string {
	if constituency == "" {
		return fmt.Sprintf("Next speaker: %s. Please state your vote.", name)
	}
	return fmt.Sprintf("Next speaker: %s, %s. Please state your vote.", name, constituency)
}
