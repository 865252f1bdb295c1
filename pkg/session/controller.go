// Package session runs one participant's membership in a room: the shared
// connected/mic/speakers state, the single outbound writer that serializes
// chat, control acknowledgments and captured audio onto the channel, and
// the inbound dispatcher that fans frames out to the terminal and the
// speakers.
package session

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salavoz/salavoz/pkg/audio"
	"github.com/salavoz/salavoz/pkg/protocol"
)

// outboundQueueSlots bounds the outbound frame queue. Text submissions
// block when it is full; capture callbacks drop instead.
const outboundQueueSlots = 32

// clearLine redraws over the partially typed prompt line.
const clearLine = "\r\x1b[2K"

// Channel is the duplex room channel the controller drives. One goroutine
// calls Recv; the send methods are called only by the writer goroutine.
type Channel interface {
	SendChat(msg protocol.ChatMessage) error
	SendAudio(hdr protocol.AudioChunkHeader, pcm []byte) error
	Recv() (any, error)
	CloseSend() error
	Close() error
}

// CaptureDevice is the microphone subsystem surface the controller needs.
type CaptureDevice interface {
	Start(emit func(format audio.Format, pcm []byte)) error
	Stop()
}

// PlaybackDevice is the speaker subsystem surface the controller needs.
type PlaybackDevice interface {
	Start() error
	Stop()
	Submit(pcm []byte)
}

// Config wires a Controller.
type Config struct {
	Sender   string
	RoomID   string
	Channel  Channel
	Capture  CaptureDevice
	Playback PlaybackDevice

	// Out receives rendered room traffic; ErrOut receives diagnostics.
	Out    io.Writer
	ErrOut io.Writer

	// Prompt is re-rendered after each inbound line. Optional.
	Prompt func() string
}

// Controller coordinates the three concerns of a live session: state
// transitions, the outbound writer and the inbound dispatcher.
type Controller struct {
	cfg   Config
	state *State

	// ctlMu serializes state transitions so enable/disable is a single
	// read-modify-write against the device lifecycle.
	ctlMu sync.Mutex

	outbound   chan outFrame
	writerDone chan struct{}

	// sendMu guards sendClosed and protects producers from a concurrent
	// close of the outbound channel.
	sendMu     sync.RWMutex
	sendClosed bool
	closeOnce  sync.Once
	quitOnce   sync.Once

	// sendFailed flips when a write hits a dead channel; later frames
	// are drained and discarded.
	sendFailed atomic.Bool

	seq            atomic.Int64
	droppedCapture atomic.Int64
	closureOnce    sync.Once
}

type outFrame struct {
	chat  *protocol.ChatMessage
	audio *protocol.AudioFrame
}

// NewController builds a stopped controller. Start connects it.
func NewController(cfg Config) *Controller {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = io.Discard
	}
	if cfg.Prompt == nil {
		cfg.Prompt = func() string { return "> " }
	}
	return &Controller{
		cfg:        cfg,
		state:      &State{},
		outbound:   make(chan outFrame, outboundQueueSlots),
		writerDone: make(chan struct{}),
	}
}

// State exposes the session flags for rendering and tests.
func (c *Controller) State() *State { return c.state }

// Start marks the session live, starts the outbound writer and announces
// this participant to the room.
func (c *Controller) Start() error {
	c.state.markConnected()
	go c.writer()
	join := protocol.NewChatMessage(c.cfg.Sender,
		fmt.Sprintf("%s se ha unido a la sala.", c.cfg.Sender), c.cfg.RoomID)
	return c.enqueueChat(join)
}

// SendText queues one chat message. Fails while disconnected; otherwise
// blocks until the writer has room.
func (c *Controller) SendText(body string) error {
	if !c.state.Connected() {
		return NewPreconditionError("not connected to a session")
	}
	return c.enqueueChat(protocol.NewChatMessage(c.cfg.Sender, body, c.cfg.RoomID))
}

// Control executes one audio control token: the device transition first,
// then the wire acknowledgment only if the transition actually changed
// state. Repeating the current state is a silent no-op.
func (c *Controller) Control(token string) error {
	var changed bool
	var err error
	switch token {
	case protocol.TokenMicOn:
		changed, err = c.setMicActive(true)
	case protocol.TokenMicOff:
		changed, err = c.setMicActive(false)
	case protocol.TokenListenOn:
		changed, err = c.setSpeakersActive(true)
	case protocol.TokenListenOff:
		changed, err = c.setSpeakersActive(false)
	default:
		return NewPreconditionError(fmt.Sprintf("unknown control %q", token))
	}
	if err != nil || !changed {
		return err
	}
	fmt.Fprintf(c.cfg.Out, "[%s]\n", strings.TrimPrefix(token, "/"))
	return c.enqueueChat(protocol.NewChatMessage(c.cfg.Sender, token, c.cfg.RoomID))
}

// SetMicActive turns capture on or off. Requires a live session; repeating
// the current state is a no-op.
func (c *Controller) SetMicActive(on bool) error {
	_, err := c.setMicActive(on)
	return err
}

// SetSpeakersActive turns playback on or off under the same rules as
// SetMicActive.
func (c *Controller) SetSpeakersActive(on bool) error {
	_, err := c.setSpeakersActive(on)
	return err
}

// setMicActive enables or disables capture. Enabling opens and starts the
// input device before the flag flips, so the flag never claims a dead
// device; disabling releases the device fully before the flag clears.
func (c *Controller) setMicActive(on bool) (changed bool, err error) {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()

	if !c.state.Connected() {
		return false, NewPreconditionError("not connected to a session")
	}
	if on == c.state.MicActive() {
		return false, nil
	}
	if on {
		if err := c.cfg.Capture.Start(c.emitCapture); err != nil {
			return false, err
		}
		c.state.setMic(true)
		return true, nil
	}
	c.cfg.Capture.Stop()
	c.state.setMic(false)
	return true, nil
}

func (c *Controller) setSpeakersActive(on bool) (changed bool, err error) {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()

	if !c.state.Connected() {
		return false, NewPreconditionError("not connected to a session")
	}
	if on == c.state.SpeakersActive() {
		return false, nil
	}
	if on {
		if err := c.cfg.Playback.Start(); err != nil {
			return false, err
		}
		c.state.setSpeakers(true)
		return true, nil
	}
	c.cfg.Playback.Stop()
	c.state.setSpeakers(false)
	return true, nil
}

// Quit announces departure and closes the outbound side. Safe to call more
// than once; only the first call does anything.
func (c *Controller) Quit() {
	c.quitOnce.Do(func() {
		if c.state.Connected() {
			leave := protocol.NewChatMessage(c.cfg.Sender,
				fmt.Sprintf("%s ha salido de la sala.", c.cfg.Sender), c.cfg.RoomID)
			if err := c.enqueueChat(leave); err != nil {
				fmt.Fprintf(c.cfg.ErrOut, "[warning] leave notice not sent: %v\n", err)
			}
		}
		c.closeOutbound()
	})
}

// Wait blocks until the outbound writer has drained and closed the send
// side of the channel.
func (c *Controller) Wait() { <-c.writerDone }

// Run is the inbound dispatcher. It returns nil on graceful peer closure
// and a connection error otherwise; either way the session is fully torn
// down when it returns.
func (c *Controller) Run() error {
	for {
		msg, err := c.cfg.Channel.Recv()
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				fmt.Fprintf(c.cfg.ErrOut, "[warning] dropping malformed frame: %v\n", de)
				continue
			}
			if errors.Is(err, io.EOF) {
				c.handleClosure(nil)
				return nil
			}
			c.handleClosure(err)
			return NewConnectionError("session stream failed", err)
		}
		c.dispatch(msg)
	}
}

func (c *Controller) dispatch(msg any) {
	switch m := msg.(type) {
	case protocol.ChatMessage:
		if m.Sender == c.cfg.Sender {
			// Broadcast echo of our own frame; already rendered locally.
			return
		}
		ts := time.Unix(m.Timestamp, 0).Format("15:04")
		fmt.Fprintf(c.cfg.Out, "%s[%s] %s: %s\n%s", clearLine, ts, m.Sender, m.Message, c.cfg.Prompt())
	case protocol.AudioFrame:
		if m.Header.Sender == c.cfg.Sender {
			return
		}
		if c.state.SpeakersActive() {
			c.cfg.Playback.Submit(m.Data)
		}
	case protocol.ErrorFrame:
		fmt.Fprintf(c.cfg.ErrOut, "[server error] %v\n", &m)
	}
}

// handleClosure runs the disconnect cascade exactly once: flags first in
// one transition, then device release, then the outbound side.
func (c *Controller) handleClosure(cause error) {
	var was bool
	c.closureOnce.Do(func() {
		c.ctlMu.Lock()
		was = c.state.disconnect()
		c.ctlMu.Unlock()

		c.cfg.Capture.Stop()
		c.cfg.Playback.Stop()
		c.closeOutbound()

		if !was {
			return
		}
		if cause != nil {
			fmt.Fprintf(c.cfg.ErrOut, "[error] connection lost: %v\n", cause)
		}
		fmt.Fprintf(c.cfg.Out, "%sSession ended.\n", clearLine)
	})
}

// emitCapture runs on the hardware callback path. It never blocks: when
// the outbound queue is full the block is dropped and counted.
func (c *Controller) emitCapture(format audio.Format, pcm []byte) {
	if !c.state.MicActive() || c.sendFailed.Load() {
		return
	}
	frame := &protocol.AudioFrame{
		Header: protocol.AudioChunkHeader{
			Type:   protocol.FrameAudioChunkHeader,
			Sender: c.cfg.Sender,
			RoomID: c.cfg.RoomID,
			Seq:    c.seq.Add(1),
			Format: string(format),
			Bytes:  len(pcm),
		},
		Data: pcm,
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return
	}
	select {
	case c.outbound <- outFrame{audio: frame}:
	default:
		if c.droppedCapture.Add(1) == 1 {
			fmt.Fprintln(c.cfg.ErrOut, "[warning] outbound queue full; dropping captured audio")
		}
	}
}

// enqueueChat blocks until the writer accepts the frame, preserving
// submission order for text and control traffic.
func (c *Controller) enqueueChat(msg protocol.ChatMessage) error {
	if c.sendFailed.Load() {
		return NewChannelClosedError("session channel is down")
	}
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return NewChannelClosedError("session is shutting down")
	}
	c.outbound <- outFrame{chat: &msg}
	return nil
}

// closeOutbound closes the queue exactly once. Producers hold sendMu for
// reading across their sends, so the close cannot race a send.
func (c *Controller) closeOutbound() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.sendClosed = true
		close(c.outbound)
		c.sendMu.Unlock()
	})
}

// writer is the single goroutine that touches the channel's send methods.
// It drains to completion even after a failure so producers never wedge,
// then announces the graceful end of the outbound side.
func (c *Controller) writer() {
	defer close(c.writerDone)
	for fr := range c.outbound {
		if c.sendFailed.Load() {
			continue
		}
		var err error
		switch {
		case fr.chat != nil:
			err = c.cfg.Channel.SendChat(*fr.chat)
		case fr.audio != nil:
			err = c.cfg.Channel.SendAudio(fr.audio.Header, fr.audio.Data)
		}
		if err != nil {
			c.sendFailed.Store(true)
			fmt.Fprintf(c.cfg.ErrOut, "[warning] send failed: %v\n", err)
		}
	}
	if !c.sendFailed.Load() {
		if err := c.cfg.Channel.CloseSend(); err != nil {
			fmt.Fprintf(c.cfg.ErrOut, "[warning] close send: %v\n", err)
		}
	}
}
