package session

import (
	"sync"
	"sync/atomic"
)

// State is the shared session flag record. All transitions go through one
// mutex so activate/deactivate is a single read-modify-write; the getters
// are atomic loads safe from hardware callback contexts, which only ever
// read the already-decided flags.
//
// Invariant: micActive or speakersActive implies connected, and connected
// turning false forces both audio flags false in the same transition.
type State struct {
	mu        sync.Mutex
	connected atomic.Bool
	mic       atomic.Bool
	speakers  atomic.Bool
}

// Connected reports whether the duplex channel is live.
func (s *State) Connected() bool { return s.connected.Load() }

// MicActive reports whether capture is running.
func (s *State) MicActive() bool { return s.mic.Load() }

// SpeakersActive reports whether playback is running.
func (s *State) SpeakersActive() bool { return s.speakers.Load() }

// Snapshot returns all three flags from one consistent point in time.
func (s *State) Snapshot() (connected, micActive, speakersActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected.Load(), s.mic.Load(), s.speakers.Load()
}

// markConnected flips the session live. Called once after the handshake.
func (s *State) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected.Store(true)
}

func (s *State) setMic(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic.Store(on)
}

func (s *State) setSpeakers(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakers.Store(on)
}

// disconnect clears connected and cascades both audio flags off atomically.
// Returns whether the session was connected before the call, so closure
// handling runs exactly once.
func (s *State) disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.connected.Load()
	s.connected.Store(false)
	s.mic.Store(false)
	s.speakers.Store(false)
	return was
}
