package session

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"proctored-quiz-service/internal/domain"
)

// SignalKind is an environment event reported by the participant's browser.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility-hidden"
	SignalVisibilityVisible SignalKind = "visibility-visible"
	SignalFullscreenExit    SignalKind = "fullscreen-exit"
	SignalKey               SignalKind = "key"
	SignalBackNavigation    SignalKind = "back-navigation"
)

// Signal is one observed environment event. Key is set for SignalKey.
type Signal struct {
	Kind SignalKind `json:"kind"`
	Key  string     `json:"key,omitempty"`
}

// Violation carries the integrity violation that ends a session.
type Violation struct {
	Kind   domain.ViolationKind `json:"kind"`
	Detail string               `json:"detail,omitempty"`
}

// Response tells the client how to handle the event it reported.
type Response struct {
	PreventDefault bool       `json:"preventDefault,omitempty"`
	RestoreHistory bool       `json:"restoreHistory,omitempty"`
	Violation      *Violation `json:"violation,omitempty"`
}

// DefaultDisallowedKeys blocks clipboard, printing, devtools, reloads and
// tab or window switching.
var DefaultDisallowedKeys = []string{
	"ctrl+c", "ctrl+v", "ctrl+x", "ctrl+a", "ctrl+p", "ctrl+s", "ctrl+u",
	"ctrl+shift+i", "ctrl+shift+j", "ctrl+shift+c", "f12",
	"f5", "ctrl+r",
	"alt+tab", "ctrl+tab", "ctrl+w", "ctrl+t", "ctrl+n", "meta+tab",
	"printscreen",
}

// Monitor turns environment signals into at most one violation per session.
type Monitor struct {
	disallowed map[string]struct{}

	mu       sync.Mutex
	listener func(Violation)
	fired    atomic.Bool
}

// NewMonitor builds a monitor; nil keys selects DefaultDisallowedKeys.
func NewMonitor(disallowedKeys []string) *Monitor {
	if disallowedKeys == nil {
		disallowedKeys = DefaultDisallowedKeys
	}
	set := make(map[string]struct{}, len(disallowedKeys))
	for _, k := range disallowedKeys {
		set[NormalizeKeyCombo(k)] = struct{}{}
	}
	return &Monitor{disallowed: set}
}

// Attach registers the violation listener. Signals observed while no
// listener is attached are ignored.
func (m *Monitor) Attach(listener func(Violation)) {
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()
}

// Detach removes the listener.
func (m *Monitor) Detach() {
	m.mu.Lock()
	m.listener = nil
	m.mu.Unlock()
}

// Attached reports whether a listener is registered.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener != nil
}

// Disallowed reports whether combo is a restricted key combination.
func (m *Monitor) Disallowed(combo string) bool {
	_, ok := m.disallowed[NormalizeKeyCombo(combo)]
	return ok
}

// Observe classifies a signal. The listener runs synchronously on the first
// violation only.
func (m *Monitor) Observe(sig Signal) Response {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener == nil {
		return Response{}
	}

	var (
		resp Response
		v    *Violation
	)
	switch sig.Kind {
	case SignalVisibilityHidden:
		v = &Violation{Kind: domain.ViolationTabHidden}
	case SignalFullscreenExit:
		v = &Violation{Kind: domain.ViolationFullscreenExited}
	case SignalKey:
		if !m.Disallowed(sig.Key) {
			return resp
		}
		resp.PreventDefault = true
		v = &Violation{Kind: domain.ViolationRestrictedKey, Detail: NormalizeKeyCombo(sig.Key)}
	case SignalBackNavigation:
		resp.RestoreHistory = true
		v = &Violation{Kind: domain.ViolationBackNavigation}
	default:
		return resp
	}

	if !m.fired.CompareAndSwap(false, true) {
		return resp
	}
	resp.Violation = v
	listener(*v)
	return resp
}

var modifierOrder = map[string]int{"ctrl": 0, "alt": 1, "shift": 2, "meta": 3}

var keyAliases = map[string]string{
	"control": "ctrl",
	"cmd":     "meta",
	"command": "meta",
	"option":  "alt",
	"prtsc":   "printscreen",
	"prtscr":  "printscreen",
}

// NormalizeKeyCombo lowercases a combo and orders modifiers, so
// "Shift+Ctrl+I" and "ctrl+shift+i" compare equal.
func NormalizeKeyCombo(combo string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	keys := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if alias, ok := keyAliases[p]; ok {
			p = alias
		}
		keys = append(keys, p)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		oi, iMod := modifierOrder[keys[i]]
		oj, jMod := modifierOrder[keys[j]]
		switch {
		case iMod && jMod:
			return oi < oj
		case iMod:
			return true
		default:
			return false
		}
	})
	return strings.Join(keys, "+")
}
