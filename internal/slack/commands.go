package slack

import "strings"

// Command is a parsed bang command from a channel or thread message.
type Command struct {
	Name string // "idea", "complete", "status", "sessions", "kill", "join"
	Args []string
	Rest string // everything after the first argument, original spacing collapsed
}

// ParseCommand recognizes "!<name> [args...]" messages. Anything else
// is plain conversation and returns ok=false.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return Command{}, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return Command{}, false
	}
	cmd := Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
	}
	if len(fields) > 2 {
		cmd.Rest = strings.Join(fields[2:], " ")
	}
	return cmd, true
}
