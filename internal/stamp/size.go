// ABOUTME: Size variants of the stamp image set and the shared size preference
// ABOUTME: Preference is injected into command handlers instead of living in a global

package stamp

import (
	"fmt"
	"sync/atomic"
)

// Size selects one of the two resolutions a stamp is stored in.
// The string value doubles as the partition directory name.
type Size string

const (
	Small Size = "sm"
	Large Size = "lg"
)

// Sizes lists every size variant.
var Sizes = []Size{Small, Large}

// ParseSize accepts the partition name or the long label.
func ParseSize(s string) (Size, error) {
	switch s {
	case "sm", "small":
		return Small, nil
	case "lg", "large":
		return Large, nil
	default:
		return "", fmt.Errorf("unknown stamp size %q", s)
	}
}

func (s Size) String() string {
	return string(s)
}

// Label is the human-readable name used in replies.
func (s Size) Label() string {
	if s == Large {
		return "large"
	}
	return "small"
}

// Other returns the opposite size variant.
func (s Size) Other() Size {
	if s == Large {
		return Small
	}
	return Large
}

// Preference is the process-wide size toggle shared by every community.
// Toggle is expected to be called by a single writer (the command worker);
// Get is safe from any goroutine.
type Preference struct {
	large atomic.Bool
}

// NewPreference returns a preference starting at initial.
func NewPreference(initial Size) *Preference {
	p := &Preference{}
	p.large.Store(initial == Large)
	return p
}

// Get returns the active size.
func (p *Preference) Get() Size {
	if p.large.Load() {
		return Large
	}
	return Small
}

// Toggle flips the preference and returns the new size.
func (p *Preference) Toggle() Size {
	for {
		old := p.large.Load()
		if p.large.CompareAndSwap(old, !old) {
			if old {
				return Small
			}
			return Large
		}
	}
}
