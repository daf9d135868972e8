// Package multimodal holds helpers shared by the speech and video backends.
package multimodal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrEmptyCommand = errors.New("command is empty")

// Expand substitutes {name} placeholders in every argument. Values are
// inserted verbatim into a single argv slot, so they never get split or
// shell-interpreted.
func Expand(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// RunCommand executes a model command with placeholders expanded and
// returns its stdout. On failure the error carries stderr.
func RunCommand(ctx context.Context, args []string, vars map[string]string) (string, error) {
	if len(args) == 0 {
		return "", ErrEmptyCommand
	}
	argv := Expand(args, vars)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s failed: %w", argv[0], err)
		}
		return "", fmt.Errorf("%s failed: %w (stderr: %s)", argv[0], err, msg)
	}

	return stdout.String(), nil
}

// LastLine returns the last non-empty line of s, trimmed.
func LastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
