package session

import (
	"sync"

	"proctored-quiz-service/internal/domain"
)

// Ledger maps question IDs to the selected option. Entries are only ever
// inserted or overwritten; Seal freezes the ledger at termination.
type Ledger struct {
	mu      sync.RWMutex
	answers map[int]string
	sealed  bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{answers: make(map[int]string)}
}

// Select records option for questionID, replacing any earlier choice.
func (l *Ledger) Select(questionID int, option string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return domain.ErrSessionTerminated
	}
	l.answers[questionID] = option
	return nil
}

// Get returns the selection for questionID; ok is false when not attempted.
func (l *Ledger) Get(questionID int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	option, ok := l.answers[questionID]
	return option, ok
}

// Len is the number of answered questions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.answers)
}

// Snapshot copies the current selections.
func (l *Ledger) Snapshot() map[int]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int]string, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}

// Seal rejects every later Select.
func (l *Ledger) Seal() {
	l.mu.Lock()
	l.sealed = true
	l.mu.Unlock()
}
