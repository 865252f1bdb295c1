// Command salavoz joins a named room on a session server and multiplexes
// terminal chat, control commands and live audio over one duplex channel.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/salavoz/salavoz/pkg/audio"
	"github.com/salavoz/salavoz/pkg/input"
	"github.com/salavoz/salavoz/pkg/protocol"
	"github.com/salavoz/salavoz/pkg/session"
	"github.com/salavoz/salavoz/pkg/transport"
)

const (
	sampleRateHz = 44100
	audioMono    = 1
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var server string
	flag.StringVar(&server, "server", "localhost:8090", "Room server address (host:port or ws(s):// URL)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One buffered reader owns stdin for both the identity prompts and
	// the session input loop.
	stdin := bufio.NewReader(os.Stdin)

	name, ok := promptNonEmpty(stdin, "Display name: ")
	if !ok {
		return 0
	}
	room, ok := promptNonEmpty(stdin, "Room: ")
	if !ok {
		return 0
	}

	hello := protocol.Hello{
		Type:            protocol.FrameHello,
		ProtocolVersion: protocol.ProtocolVersion1,
		Sender:          name,
		RoomID:          room,
		Audio: protocol.AudioFormat{
			Encoding:     string(audio.FormatF32),
			SampleRateHz: sampleRateHz,
			Channels:     audioMono,
		},
	}

	var conn *transport.Conn
	var ack *protocol.HelloAck
	for {
		var err error
		conn, ack, err = transport.Dial(ctx, server, hello)
		if err == nil {
			break
		}
		var ef *protocol.ErrorFrame
		if errors.As(err, &ef) && ef.Code == protocol.ErrCodeNameTaken {
			fmt.Fprintf(os.Stderr, "The name %q is already in use in room %s.\n", hello.Sender, room)
			name, ok = promptNonEmpty(stdin, "Display name: ")
			if !ok {
				return 0
			}
			hello.Sender = name
			continue
		}
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		return 1
	}
	defer conn.Close()

	var capture session.CaptureDevice
	var playback session.PlaybackDevice
	eng, err := audio.NewMalgoEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[warning] audio unavailable, continuing text-only: %v\n", err)
		capture, playback = textOnlyCapture{}, textOnlyPlayback{}
	} else {
		defer eng.Close()
		capture = audio.NewCapture(eng, sampleRateHz, audioMono, os.Stderr)
		playback = audio.NewPlayback(eng, sampleRateHz, audioMono, os.Stderr)
	}

	prompt := func() string { return "> " }
	ctrl := session.NewController(session.Config{
		Sender:   name,
		RoomID:   room,
		Channel:  conn,
		Capture:  capture,
		Playback: playback,
		Out:      os.Stdout,
		ErrOut:   os.Stderr,
		Prompt:   prompt,
	})

	fmt.Printf("Connected to room %s as %s (session %s).\n", room, name, ack.SessionID)
	fmt.Println("Type /help for commands, /quit to leave.")
	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		return 1
	}

	dispatchErr := make(chan error, 1)
	go func() { dispatchErr <- ctrl.Run() }()

	inputErr := make(chan error, 1)
	mux := input.NewMultiplexer(stdin, ctrl, os.Stdout, os.Stderr, prompt)
	go func() { inputErr <- mux.Run() }()

	exit := 0
	sessionOver := false
	select {
	case err := <-dispatchErr:
		// The peer or the network ended the session.
		sessionOver = true
		if err != nil {
			exit = 1
		}
	case <-ctx.Done():
		fmt.Println()
		ctrl.Quit()
	case err := <-inputErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "[error] input: %v\n", err)
			exit = 1
		}
	}

	// Flush the leave notice, give the peer a moment to close cleanly,
	// then drop the socket. The input goroutine may still be blocked on
	// a terminal read; it does not need to finish.
	ctrl.Quit()
	ctrl.Wait()
	if !sessionOver {
		select {
		case <-dispatchErr:
		case <-time.After(3 * time.Second):
		}
	}
	return exit
}

// promptNonEmpty loops until a non-blank line or terminal EOF.
func promptNonEmpty(r *bufio.Reader, label string) (string, bool) {
	for {
		fmt.Print(label)
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed, true
		}
		if err != nil {
			fmt.Println()
			return "", false
		}
	}
}

var errNoAudio = errors.New("audio subsystem unavailable")

// textOnlyCapture and textOnlyPlayback stand in when no audio backend can
// be initialized; control commands fail cleanly instead of crashing.
type textOnlyCapture struct{}

func (textOnlyCapture) Start(func(format audio.Format, pcm []byte)) error { return errNoAudio }
func (textOnlyCapture) Stop()                                             {}

type textOnlyPlayback struct{}

func (textOnlyPlayback) Start() error  { return errNoAudio }
func (textOnlyPlayback) Stop()         {}
func (textOnlyPlayback) Submit([]byte) {}
