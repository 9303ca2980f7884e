package sonar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ErrUnknownCommand is returned for command lines that name no known command.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a control console verb.
type Command string

const (
	CommandStart  Command = "start"
	CommandStop   Command = "stop"
	CommandStatus Command = "status"
)

// ParseCommand splits a console line with shell quoting rules and returns
// the command and its remaining arguments.
func ParseCommand(line string) (Command, []string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse command %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("%w: empty command line", ErrUnknownCommand)
	}

	cmd := Command(strings.ToLower(words[0]))
	switch cmd {
	case CommandStart, CommandStop, CommandStatus:
		return cmd, words[1:], nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownCommand, words[0])
	}
}

// Execute parses and runs one console line against the task and returns the
// reply text.
func (t *Task) Execute(ctx context.Context, line string) (string, error) {
	cmd, _, err := ParseCommand(line)
	if err != nil {
		return "", err
	}

	switch cmd {
	case CommandStart:
		if t.Running() {
			return "sonar already running", nil
		}
		// The loop outlives the request or console line that started it.
		if err := t.Start(context.WithoutCancel(ctx)); err != nil {
			return "", err
		}
		return "sonar started", nil
	case CommandStop:
		t.Stop()
		return "sonar stopped", nil
	default:
		b, err := json.Marshal(struct {
			Running bool `json:"running"`
			Status
		}{t.Running(), t.driver.Status()})
		if err != nil {
			return "", fmt.Errorf("failed to encode status: %w", err)
		}
		return string(b), nil
	}
}
