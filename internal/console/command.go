package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type CommandKind string

const (
	CommandMove  CommandKind = "move"
	CommandChat  CommandKind = "chat"
	CommandVoice CommandKind = "voice"
	CommandReset CommandKind = "reset"
	CommandQuit  CommandKind = "quit"
	CommandHelp  CommandKind = "help"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad argument")
)

// Command is one parsed input line. Cell is zero-based; users type 1 to 9.
type Command struct {
	Kind CommandKind
	Cell int
	Text string
}

const helpText = `commands:
  1-9 | move <1-9>    place your mark
  chat <text>        send a chat message (also: say)
  voice <file>       send an audio file as a voice message
  reset              start the next round
  help               show this help
  quit               leave the game (also: menu, exit)`

func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	if cell, err := parseCell(name); err == nil && rest == "" {
		return Command{Kind: CommandMove, Cell: cell}, nil
	}

	switch strings.ToLower(name) {
	case "move", "m":
		cell, err := parseCell(rest)
		if err != nil {
			return Command{}, err
		}

		return Command{Kind: CommandMove, Cell: cell}, nil
	case "chat", "say":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: chat needs a message", ErrBadArgument)
		}

		return Command{Kind: CommandChat, Text: rest}, nil
	case "voice":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: voice needs a file", ErrBadArgument)
		}

		return Command{Kind: CommandVoice, Text: rest}, nil
	case "reset", "again":
		return Command{Kind: CommandReset}, nil
	case "quit", "exit", "menu", "q":
		return Command{Kind: CommandQuit}, nil
	case "help", "?":
		return Command{Kind: CommandHelp}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

func parseCell(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > 9 {
		return -1, fmt.Errorf("%w: cell must be 1-9, got %q", ErrBadArgument, arg)
	}

	return n - 1, nil
}
