// Package commands translates the slash-command grammar into workflow
// manager calls.
package commands

import (
	"strings"
)

// Kind identifies one command in the grammar.
type Kind string

const (
	KindStart  Kind = "start"  // /start <name> [| <description>]
	KindTask   Kind = "task"   // /task <title> [| <description>]
	KindFocus  Kind = "focus"  // /focus <index|id>
	KindNext   Kind = "next"   // /next [<completion note>]
	KindStatus Kind = "status" // /status [history]
	KindPlan   Kind = "plan"   // /plan [list]
)

// Command is one parsed instruction.
type Command struct {
	Kind Kind
	// Arg is the primary argument: plan name, task title, focus reference,
	// completion note, or the status/plan modifier.
	Arg string
	// Description is the optional text after the pipe separator.
	Description string
}

// ParseError describes an unparseable input. It is a structured result for
// the caller, never a crash.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// Parse turns one input line into a command. Inputs not starting with a
// known slash command yield a ParseError.
func Parse(input string) (*Command, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || !strings.HasPrefix(trimmed, "/") {
		return nil, &ParseError{Input: input, Message: "commands start with /"}
	}

	verb, rest, _ := strings.Cut(trimmed[1:], " ")
	rest = strings.TrimSpace(rest)

	switch Kind(strings.ToLower(verb)) {
	case KindStart:
		name, description := splitPipe(rest)
		if name == "" {
			return nil, &ParseError{Input: input, Message: "/start requires a plan name"}
		}

		return &Command{Kind: KindStart, Arg: name, Description: description}, nil
	case KindTask:
		title, description := splitPipe(rest)
		if title == "" {
			return nil, &ParseError{Input: input, Message: "/task requires a title"}
		}

		return &Command{Kind: KindTask, Arg: title, Description: description}, nil
	case KindFocus:
		if rest == "" {
			return nil, &ParseError{Input: input, Message: "/focus requires a task index or id"}
		}

		return &Command{Kind: KindFocus, Arg: rest}, nil
	case KindNext:
		return &Command{Kind: KindNext, Arg: rest}, nil
	case KindStatus:
		if rest != "" && rest != "history" {
			return nil, &ParseError{Input: input, Message: "/status accepts only the history modifier"}
		}

		return &Command{Kind: KindStatus, Arg: rest}, nil
	case KindPlan:
		if rest != "" && rest != "list" {
			return nil, &ParseError{Input: input, Message: "/plan accepts only the list modifier"}
		}

		return &Command{Kind: KindPlan, Arg: rest}, nil
	}

	return nil, &ParseError{Input: input, Message: "unknown command: /" + verb}
}

func splitPipe(s string) (string, string) {
	first, second, _ := strings.Cut(s, "|")

	return strings.TrimSpace(first), strings.TrimSpace(second)
}
