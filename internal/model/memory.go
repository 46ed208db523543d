// Package model defines the core memory data types.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MemoryType classifies a memory.
type MemoryType string

const (
	TypeFact         MemoryType = "fact"
	TypePreference   MemoryType = "preference"
	TypeConversation MemoryType = "conversation"
	TypeNote         MemoryType = "note"
)

// MaxTagLength is the longest tag accepted, in characters.
const MaxTagLength = 50

// Memory represents a stored memory record.
type Memory struct {
	ID           int64      `json:"id"`
	Content      string     `json:"content"`
	MemoryType   MemoryType `json:"memory_type"`
	Context      string     `json:"context,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	Encrypted    bool       `json:"encrypted"`
}

// HasTag reports whether the memory carries tag (already normalized).
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MemoryTypes lists the allowed memory types in display order.
var MemoryTypes = []MemoryType{TypeFact, TypePreference, TypeConversation, TypeNote}

// ValidTypes are the allowed memory types.
var ValidTypes = map[MemoryType]bool{
	TypeFact:         true,
	TypePreference:   true,
	TypeConversation: true,
	TypeNote:         true,
}

// ParseMemoryType validates s against the fixed enumeration.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if !ValidTypes[t] {
		return "", fmt.Errorf("%w: %q (valid: fact, preference, conversation, note)", ErrInvalidMemoryType, s)
	}
	return t, nil
}

// NormalizeTags trims and lower-cases tags, dropping empties and duplicates.
// The first occurrence wins, so display order is preserved.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidTag, t, MaxTagLength)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
