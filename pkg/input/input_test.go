package input

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/salavoz/salavoz/pkg/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Action
		body string
	}{
		{"empty", "", ActionNone, ""},
		{"whitespace only", "   \t", ActionNone, ""},
		{"plain chat", "hola a todos", ActionChat, "hola a todos"},
		{"chat is trimmed", "  hola  ", ActionChat, "hola"},
		{"mic on", "/mic on", ActionMicOn, protocol.TokenMicOn},
		{"mic off", "/mic off", ActionMicOff, protocol.TokenMicOff},
		{"listen on", "/listen on", ActionListenOn, protocol.TokenListenOn},
		{"listen off", "/listen off", ActionListenOff, protocol.TokenListenOff},
		{"command with padding", "  /mic on  ", ActionMicOn, protocol.TokenMicOn},
		{"quit", "/quit", ActionQuit, protocol.TokenQuit},
		{"exit", "/exit", ActionQuit, protocol.TokenExit},
		{"disconnect", "/disconnect", ActionQuit, protocol.TokenDisconnect},
		{"help", "/help", ActionHelp, "/help"},
		{"wrong case is chat", "/MIC ON", ActionChat, "/MIC ON"},
		{"inner spaces are chat", "/mic  on", ActionChat, "/mic  on"},
		{"unknown slash is chat", "/mute", ActionChat, "/mute"},
		{"command mid-sentence is chat", "say /mic on", ActionChat, "say /mic on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, body := Classify(tt.line)
			if action != tt.want || body != tt.body {
				t.Fatalf("Classify(%q) = %v %q, want %v %q", tt.line, action, body, tt.want, tt.body)
			}
		})
	}
}

// scriptHandler records the calls the loop makes.
type scriptHandler struct {
	texts    []string
	controls []string
	quits    int
	sendErr  error
	ctrlErr  error
}

func (h *scriptHandler) SendText(body string) error {
	h.texts = append(h.texts, body)
	return h.sendErr
}

func (h *scriptHandler) Control(token string) error {
	h.controls = append(h.controls, token)
	return h.ctrlErr
}

func (h *scriptHandler) Quit() { h.quits++ }

func TestRunMultiplexesLines(t *testing.T) {
	in := strings.NewReader("hola\n/mic on\n\n/listen off\nadios\n/quit\nignored after quit\n")
	h := &scriptHandler{}
	m := NewMultiplexer(in, h, &bytes.Buffer{}, &bytes.Buffer{}, nil)

	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := []string{"hola", "adios"}; !equal(h.texts, want) {
		t.Fatalf("texts = %v, want %v", h.texts, want)
	}
	if want := []string{protocol.TokenMicOn, protocol.TokenListenOff}; !equal(h.controls, want) {
		t.Fatalf("controls = %v, want %v", h.controls, want)
	}
	if h.quits != 1 {
		t.Fatalf("quits = %d, want 1", h.quits)
	}
}

func TestRunQuitsOnEOF(t *testing.T) {
	h := &scriptHandler{}
	m := NewMultiplexer(strings.NewReader("hola\n"), h, &bytes.Buffer{}, &bytes.Buffer{}, nil)

	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.quits != 1 {
		t.Fatalf("quits = %d, want 1 on EOF", h.quits)
	}
}

func TestRunReportsCommandFailuresAndContinues(t *testing.T) {
	h := &scriptHandler{ctrlErr: errors.New("not connected to a session")}
	var diag bytes.Buffer
	m := NewMultiplexer(strings.NewReader("/mic on\nhola\n"), h, &bytes.Buffer{}, &diag, nil)

	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(diag.String(), "not connected") {
		t.Fatalf("diagnostic missing: %q", diag.String())
	}
	if want := []string{"hola"}; !equal(h.texts, want) {
		t.Fatalf("loop must continue after a failed command, texts = %v", h.texts)
	}
}

func TestRunShowsHelp(t *testing.T) {
	var out bytes.Buffer
	m := NewMultiplexer(strings.NewReader("/help\n/quit\n"), &scriptHandler{}, &out, &bytes.Buffer{}, nil)

	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "/mic on") {
		t.Fatalf("help text missing: %q", out.String())
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
