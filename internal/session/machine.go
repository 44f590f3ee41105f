// Package session implements the proctored quiz session: countdown, integrity
// monitor, answer ledger and the state machine composing them.
package session

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/scoring"
)

// DefaultDuration matches the ten minute countdown of the quiz page.
const DefaultDuration = 10 * time.Minute

// State is the lifecycle stage of a Machine.
type State int

const (
	StateLoading State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Hooks receive the machine's outbound signals. They run outside the
// machine lock and may call back into read-only accessors.
type Hooks struct {
	Tick       func(Clock)
	LowTime    func(Clock)
	Terminated func(domain.TerminationCause, domain.ResultSummary)
}

// Ticker is the subset of time.Ticker the tick loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// Options configure a Machine.
type Options struct {
	Topic          string
	AttemptID      string
	Duration       time.Duration
	DisallowedKeys []string
	// Proctor is released exactly once when the session terminates.
	Proctor   io.Closer
	Hooks     Hooks
	Rand      *rand.Rand
	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
	Logger    *zap.Logger
}

// Position is the participant's view of the current question.
type Position struct {
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Answered int                 `json:"answered"`
	Question domain.QuestionView `json:"question"`
	Selected string              `json:"selected,omitempty"`
	Last     bool                `json:"last"`
}

// Machine is the session state machine: Loading -> Active -> Terminated.
type Machine struct {
	topic     string
	attemptID string
	duration  time.Duration
	proctor   io.Closer
	rnd       *rand.Rand
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	logger    *zap.Logger

	countdown *Countdown
	ledger    *Ledger
	monitor   *Monitor

	// hookMu serialises hook calls so no tick follows the Terminated hook.
	// It is taken before mu, never while holding it.
	hookMu sync.Mutex

	mu        sync.Mutex
	hooks     Hooks
	state     State
	questions []domain.Question
	index     int
	startedAt time.Time
	cause     domain.TerminationCause
	summary   domain.ResultSummary

	terminated atomic.Bool
	stop       chan struct{}
	loopDone   chan struct{}
	done       chan struct{}
}

// New creates a machine in the Loading state.
func New(opts Options) *Machine {
	if opts.AttemptID == "" {
		opts.AttemptID = uuid.NewString()
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Machine{
		topic:     opts.Topic,
		attemptID: opts.AttemptID,
		duration:  opts.Duration,
		proctor:   opts.Proctor,
		rnd:       opts.Rand,
		newTicker: opts.NewTicker,
		now:       opts.Now,
		logger:    opts.Logger.With(zap.String("attemptId", opts.AttemptID), zap.String("topic", opts.Topic)),
		countdown: newCountdown(opts.Duration),
		ledger:    NewLedger(),
		monitor:   NewMonitor(opts.DisallowedKeys),
		hooks:     opts.Hooks,
		state:     StateLoading,
		cause:     domain.CauseNone,
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// AttemptID identifies this session instance.
func (m *Machine) AttemptID() string { return m.attemptID }

// Topic is the topic slug of the session.
func (m *Machine) Topic() string { return m.topic }

// SetHooks replaces the outbound hooks, e.g. when a client reconnects.
func (m *Machine) SetHooks(h Hooks) {
	m.mu.Lock()
	m.hooks = h
	m.mu.Unlock()
}

// Start shuffles the questions once, arms the countdown, attaches the
// monitor and starts ticking.
func (m *Machine) Start(questions []domain.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoading {
		return fmt.Errorf("start %s session: %w", m.state, domain.ErrSessionNotActive)
	}
	if len(questions) == 0 {
		return domain.ErrTopicNotFound
	}

	shuffled := make([]domain.Question, len(questions))
	copy(shuffled, questions)
	m.rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	m.questions = shuffled
	m.startedAt = m.now()
	m.state = StateActive
	m.monitor.Attach(m.onViolation)

	ticker := m.newTicker(time.Second)
	go m.loop(ticker)

	m.logger.Debug("session started", zap.Int("questions", len(shuffled)), zap.Duration("duration", m.duration))
	return nil
}

func (m *Machine) loop(ticker Ticker) {
	defer close(m.loopDone)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C():
			m.Tick()
		}
	}
}

// Tick advances the countdown by one second. It is a no-op outside Active.
func (m *Machine) Tick() {
	m.hookMu.Lock()
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		m.hookMu.Unlock()
		return
	}
	res := m.countdown.Tick()
	hooks := m.hooks
	m.mu.Unlock()

	clock := ClockOf(res.Remaining)
	if hooks.Tick != nil {
		hooks.Tick(clock)
	}
	if res.LowTime && hooks.LowTime != nil {
		hooks.LowTime(clock)
	}
	m.hookMu.Unlock()

	if res.Expired {
		m.terminate(domain.CauseTimeExpired)
	}
}

// Signal feeds an environment event to the integrity monitor.
func (m *Machine) Signal(sig Signal) Response {
	if m.State() != StateActive {
		return Response{}
	}
	return m.monitor.Observe(sig)
}

func (m *Machine) onViolation(v Violation) {
	m.logger.Info("integrity violation", zap.String("kind", string(v.Kind)), zap.String("detail", v.Detail))
	m.terminate(v.Kind.Cause())
}

// SelectAnswer records an option for a question of this session.
func (m *Machine) SelectAnswer(questionID int, option string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return err
	}
	q, ok := m.questionLocked(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if !q.HasOption(option) {
		return domain.ErrOptionNotFound
	}
	return m.ledger.Select(questionID, option)
}

// Next moves forward; on the last question it submits the session and
// reports submitted=true.
func (m *Machine) Next() (Position, bool, error) {
	m.mu.Lock()
	if err := m.activeLocked(); err != nil {
		m.mu.Unlock()
		return Position{}, false, err
	}
	if m.index < len(m.questions)-1 {
		m.index++
		pos := m.positionLocked()
		m.mu.Unlock()
		return pos, false, nil
	}
	m.mu.Unlock()

	if !m.terminate(domain.CauseManualSubmit) {
		return Position{}, false, domain.ErrSessionTerminated
	}
	return Position{}, true, nil
}

// Previous moves back one question; it stays put on the first one.
func (m *Machine) Previous() (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return Position{}, err
	}
	if m.index > 0 {
		m.index--
	}
	return m.positionLocked(), nil
}

// CurrentQuestion returns the question the participant is on.
func (m *Machine) CurrentQuestion() (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return Position{}, err
	}
	return m.positionLocked(), nil
}

// Submit ends the session on the participant's request.
func (m *Machine) Submit() error {
	switch m.State() {
	case StateLoading:
		return domain.ErrSessionNotActive
	case StateTerminated:
		return domain.ErrSessionTerminated
	}
	if !m.terminate(domain.CauseManualSubmit) {
		return domain.ErrSessionTerminated
	}
	return nil
}

// Remaining is the time left on the countdown.
func (m *Machine) Remaining() Clock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ClockOf(m.countdown.Remaining())
}

// State returns the lifecycle stage.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TerminationCause is CauseNone until the session ends.
func (m *Machine) TerminationCause() domain.TerminationCause {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

// ResultSummary is only available once the session has terminated.
func (m *Machine) ResultSummary() (domain.ResultSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateTerminated {
		return domain.ResultSummary{}, domain.ErrSessionNotActive
	}
	return m.summary, nil
}

// StartedAt is when the session became Active.
func (m *Machine) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Done is closed after termination has been fully handled.
func (m *Machine) Done() <-chan struct{} { return m.done }

// terminate commits cause if no other cause has been committed. The
// compare-and-swap makes the first of expiry, violation and submit win.
func (m *Machine) terminate(cause domain.TerminationCause) bool {
	m.mu.Lock()
	if m.state != StateActive || !m.terminated.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return false
	}
	m.state = StateTerminated
	m.cause = cause
	m.ledger.Seal()
	m.monitor.Detach()
	close(m.stop)

	summary := scoring.Score(m.topic, m.questions, m.ledger.Snapshot())
	summary.AttemptID = m.attemptID
	summary.ElapsedSeconds = int((m.duration - m.countdown.Remaining()) / time.Second)
	m.summary = summary
	hooks := m.hooks
	m.mu.Unlock()

	if m.proctor != nil {
		if err := m.proctor.Close(); err != nil {
			m.logger.Warn("release proctoring handle", zap.Error(err))
		}
	}
	m.logger.Info("session terminated",
		zap.String("cause", string(cause)),
		zap.Int("correct", summary.Correct),
		zap.Int("total", summary.Total),
	)
	if hooks.Terminated != nil {
		m.hookMu.Lock()
		hooks.Terminated(cause, summary)
		m.hookMu.Unlock()
	}
	close(m.done)
	return true
}

// Wait blocks until the tick loop has exited. Only valid after Start.
func (m *Machine) Wait() {
	<-m.loopDone
}

func (m *Machine) activeLocked() error {
	switch m.state {
	case StateLoading:
		return domain.ErrSessionNotActive
	case StateTerminated:
		return domain.ErrSessionTerminated
	}
	return nil
}

func (m *Machine) questionLocked(id int) (domain.Question, bool) {
	for _, q := range m.questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (m *Machine) positionLocked() Position {
	q := m.questions[m.index]
	selected, _ := m.ledger.Get(q.ID)
	return Position{
		Index:    m.index,
		Total:    len(m.questions),
		Answered: m.ledger.Len(),
		Question: q.View(),
		Selected: selected,
		Last:     m.index == len(m.questions)-1,
	}
}
