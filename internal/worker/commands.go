package worker

import (
	"encoding/json"
	"fmt"
)

// CommandReconfigure and CommandQuit are the only two command verbs the
// commands channel accepts.
const (
	CommandReconfigure = "reconfigure"
	CommandQuit        = "quit"
)

// Command is the decoded shape of a single commands-pull message:
// {"command": "reconfigure", "arguments": {"config": {...}}} or
// {"command": "quit"}.
type Command struct {
	Command   string      `json:"command"`
	Arguments CommandArgs `json:"arguments"`
}

// CommandArgs carries the reconfigure verb's payload; Config is left as
// raw JSON so it can be handed to viper without a second marshal round
// trip.
type CommandArgs struct {
	Config json.RawMessage `json:"config"`
}

// ParseCommand decodes a single commands-channel message. A malformed
// payload is a ParseError: the caller publishes it as a non-fatal
// event and continues, per the error taxonomy.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	switch cmd.Command {
	case CommandReconfigure, CommandQuit:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", cmd.Command)
	}
}

// IsReconfigure and IsQuit are small readability helpers over the
// decoded verb.
func (c Command) IsReconfigure() bool { return c.Command == CommandReconfigure }
func (c Command) IsQuit() bool        { return c.Command == CommandQuit }
