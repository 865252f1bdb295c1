// Package protocol defines the wire frames exchanged over the duplex room
// channel. Text frames are JSON objects carrying a "type" envelope; audio
// payloads travel as binary frames announced by a preceding
// audio_chunk_header text frame.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ProtocolVersion1 = "1"

	FrameHello            = "hello"
	FrameHelloAck         = "hello_ack"
	FrameChat             = "chat"
	FrameAudioChunkHeader = "audio_chunk_header"
	FrameError            = "error"
)

// Control tokens recognized by the input loop. The audio tokens are also
// wire-visible: they ride the chat stream and are echoed back by the server
// as command acknowledgments.
const (
	TokenMicOn      = "/mic on"
	TokenMicOff     = "/mic off"
	TokenListenOn   = "/listen on"
	TokenListenOff  = "/listen off"
	TokenQuit       = "/quit"
	TokenExit       = "/exit"
	TokenDisconnect = "/disconnect"
)

// IsControlToken reports whether body is one of the audio control tokens
// that servers echo back as acknowledgments.
func IsControlToken(body string) bool {
	switch body {
	case TokenMicOn, TokenMicOff, TokenListenOn, TokenListenOff:
		return true
	default:
		return false
	}
}

// IsQuitToken reports whether body requests session termination.
func IsQuitToken(body string) bool {
	switch body {
	case TokenQuit, TokenExit, TokenDisconnect:
		return true
	default:
		return false
	}
}

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// AudioFormat describes the audio shape a peer declares in its hello.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// Hello is the first frame sent after the websocket opens. It carries the
// session identity (sender, room) that keys every subsequent frame.
type Hello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Sender          string      `json:"sender"`
	RoomID          string      `json:"room_id"`
	Audio           AudioFormat `json:"audio"`
}

// HelloAck confirms room admission.
type HelloAck struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	RoomID          string `json:"room_id"`
}

// ChatMessage is one text message in a room. Immutable once built.
type ChatMessage struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	RoomID    string `json:"room_id"`
	Timestamp int64  `json:"timestamp"`
	TraceID   string `json:"trace_id"`
}

// NewChatMessage builds a ChatMessage with a fresh timestamp and trace id.
func NewChatMessage(sender, body, roomID string) ChatMessage {
	return ChatMessage{
		Type:      FrameChat,
		Sender:    sender,
		Message:   body,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
		TraceID:   uuid.New().String(),
	}
}

// AudioChunkHeader announces one binary audio frame. The next binary
// websocket message carries exactly Bytes bytes of opaque PCM in the named
// format.
type AudioChunkHeader struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	RoomID string `json:"room_id"`
	Seq    int64  `json:"seq"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// AudioFrame is the decoded in-process pairing of a chunk header with its
// binary payload.
type AudioFrame struct {
	Header AudioChunkHeader
	Data   []byte
}

// ErrorFrame reports a server-side failure. It implements error so the
// transport can surface handshake rejections (e.g. a taken display name)
// directly.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorFrame) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Code) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// ErrCodeNameTaken is sent in response to a hello whose sender name is
// already present in the room.
const ErrCodeNameTaken = "name_taken"

// ValidateHello checks the fields a server requires to admit a session.
func ValidateHello(h Hello) error {
	if strings.TrimSpace(h.ProtocolVersion) == "" {
		return badFrame("hello.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(h.Sender) == "" {
		return badFrame("hello.sender is required", "sender")
	}
	if strings.TrimSpace(h.RoomID) == "" {
		return badFrame("hello.room_id is required", "room_id")
	}
	if strings.TrimSpace(h.Audio.Encoding) == "" {
		return badFrame("hello.audio.encoding is required", "audio.encoding")
	}
	if h.Audio.SampleRateHz <= 0 {
		return badFrame("hello.audio.sample_rate_hz must be > 0", "audio.sample_rate_hz")
	}
	if h.Audio.Channels <= 0 {
		return badFrame("hello.audio.channels must be > 0", "audio.channels")
	}
	return nil
}

// DecodeServerFrame decodes one inbound text frame into its typed form.
// Binary frames are paired with the preceding AudioChunkHeader by the
// transport, not here.
func DecodeServerFrame(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case FrameHelloAck:
		var msg HelloAck
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid hello_ack", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badFrame("hello_ack.session_id is required", "session_id")
		}
		return msg, nil
	case FrameChat:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid chat frame", "")
		}
		if strings.TrimSpace(msg.Sender) == "" {
			return nil, badFrame("chat.sender is required", "sender")
		}
		if strings.TrimSpace(msg.RoomID) == "" {
			return nil, badFrame("chat.room_id is required", "room_id")
		}
		return msg, nil
	case FrameAudioChunkHeader:
		var msg AudioChunkHeader
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio_chunk_header", "")
		}
		if strings.TrimSpace(msg.Sender) == "" {
			return nil, badFrame("audio_chunk_header.sender is required", "sender")
		}
		if strings.TrimSpace(msg.Format) == "" {
			return nil, badFrame("audio_chunk_header.format is required", "format")
		}
		if msg.Bytes <= 0 {
			return nil, badFrame("audio_chunk_header.bytes must be > 0", "bytes")
		}
		return msg, nil
	case FrameError:
		var msg ErrorFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return msg, nil
	default:
		return nil, badFrame("unsupported frame type", "type")
	}
}
