package identify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Mode selects how an image is resolved to an attendee.
type Mode string

const (
	// ModeClassify asks the recognition service's classifier for an attendee id.
	ModeClassify Mode = "classify"
	// ModeEmbed computes an embedding and matches it against the enrolled catalog.
	ModeEmbed Mode = "embed"
)

// ErrInvalidMode is returned by ParseMode for unknown names.
var ErrInvalidMode = errors.New("invalid recognition mode")

// ParseMode parses a mode name, ignoring case and surrounding spaces.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeClassify:
		return ModeClassify, nil
	case ModeEmbed:
		return ModeEmbed, nil
	}
	return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidMode, s, ModeClassify, ModeEmbed)
}

// ModeSwitch holds the active recognition mode. It is read on every
// identification and may be changed at any time; the latest Set wins.
// The mode lives in memory only.
type ModeSwitch struct {
	mu   sync.RWMutex
	mode Mode
}

// NewModeSwitch creates a switch starting in initial, or classify when initial is empty.
func NewModeSwitch(initial Mode) *ModeSwitch {
	if initial == "" {
		initial = ModeClassify
	}
	return &ModeSwitch{mode: initial}
}

// Get returns the current mode.
func (s *ModeSwitch) Get() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Set replaces the current mode.
func (s *ModeSwitch) Set(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}
