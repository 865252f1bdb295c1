// Package input reads the terminal line by line and multiplexes each line
// into chat text, a control command or a quit request.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/salavoz/salavoz/pkg/protocol"
)

// Action is what one input line asks for.
type Action int

const (
	// ActionNone is an empty line; nothing is sent.
	ActionNone Action = iota
	ActionChat
	ActionHelp
	ActionQuit
	ActionMicOn
	ActionMicOff
	ActionListenOn
	ActionListenOff
)

// Classify maps one raw input line to its action. Commands match exactly
// after trimming surrounding whitespace; anything else, including
// near-misses like "/MIC ON", is plain chat.
func Classify(line string) (Action, string) {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "":
		return ActionNone, ""
	case protocol.TokenMicOn:
		return ActionMicOn, trimmed
	case protocol.TokenMicOff:
		return ActionMicOff, trimmed
	case protocol.TokenListenOn:
		return ActionListenOn, trimmed
	case protocol.TokenListenOff:
		return ActionListenOff, trimmed
	case protocol.TokenQuit, protocol.TokenExit, protocol.TokenDisconnect:
		return ActionQuit, trimmed
	case "/help":
		return ActionHelp, trimmed
	}
	return ActionChat, trimmed
}

// Handler receives the classified actions. Control gets the wire token of
// the command ("/mic on" etc.).
type Handler interface {
	SendText(body string) error
	Control(token string) error
	Quit()
}

// Multiplexer drives one reader, usually stdin, until quit or EOF.
type Multiplexer struct {
	scanner *bufio.Scanner
	handler Handler
	out     io.Writer
	errOut  io.Writer
	prompt  func() string
}

// NewMultiplexer wires an input loop. prompt is optional.
func NewMultiplexer(r io.Reader, handler Handler, out, errOut io.Writer, prompt func() string) *Multiplexer {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if prompt == nil {
		prompt = func() string { return "> " }
	}
	return &Multiplexer{
		scanner: bufio.NewScanner(r),
		handler: handler,
		out:     out,
		errOut:  errOut,
		prompt:  prompt,
	}
}

// Run loops until a quit command or EOF, both of which request session
// termination exactly once. Command failures are reported and the loop
// continues.
func (m *Multiplexer) Run() error {
	fmt.Fprint(m.out, m.prompt())
	for m.scanner.Scan() {
		action, body := Classify(m.scanner.Text())

		var err error
		switch action {
		case ActionNone:
		case ActionHelp:
			m.printHelp()
		case ActionQuit:
			m.handler.Quit()
			return nil
		case ActionChat:
			err = m.handler.SendText(body)
		default:
			err = m.handler.Control(body)
		}
		if err != nil {
			fmt.Fprintf(m.errOut, "[error] %v\n", err)
		}
		fmt.Fprint(m.out, m.prompt())
	}

	// EOF on stdin ends the session like /quit.
	m.handler.Quit()
	return m.scanner.Err()
}

func (m *Multiplexer) printHelp() {
	fmt.Fprint(m.out, `Commands:
  /mic on       start sending microphone audio
  /mic off      stop sending microphone audio
  /listen on    start playing room audio
  /listen off   stop playing room audio
  /quit         leave the room (also /exit, /disconnect)
  /help         show this help
Anything else is sent to the room as chat.
`)
}
