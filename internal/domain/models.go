package domain

import (
	"fmt"
	"time"
)

// Question is a multiple choice question from the question bank.
type Question struct {
	ID      int      `json:"id" yaml:"id"`
	Topic   string   `json:"topic" yaml:"topic"`
	Prompt  string   `json:"question" yaml:"question"`
	Options []string `json:"options" yaml:"options"`
	Answer  string   `json:"answer" yaml:"answer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// View strips the correct answer so the question can be sent to a participant.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Topic: q.Topic, Prompt: q.Prompt, Options: q.Options}
}

// QuestionView is the participant-facing form of a Question.
type QuestionView struct {
	ID      int      `json:"id"`
	Topic   string   `json:"topic"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// TerminationCause is the reason a session stopped accepting input.
type TerminationCause string

const (
	CauseNone             TerminationCause = "none"
	CauseTimeExpired      TerminationCause = "time-expired"
	CauseTabHidden        TerminationCause = "tab-hidden"
	CauseFullscreenExited TerminationCause = "fullscreen-exited"
	CauseRestrictedKey    TerminationCause = "restricted-key"
	CauseBackNavigation   TerminationCause = "back-navigation"
	CauseManualSubmit     TerminationCause = "manual-submit"
)

// IsViolation reports whether the cause came from the integrity monitor.
func (c TerminationCause) IsViolation() bool {
	switch c {
	case CauseTabHidden, CauseFullscreenExited, CauseRestrictedKey, CauseBackNavigation:
		return true
	}
	return false
}

// ViolationKind enumerates the integrity signals that force termination.
type ViolationKind string

const (
	ViolationTabHidden        ViolationKind = "tab-hidden"
	ViolationFullscreenExited ViolationKind = "fullscreen-exited"
	ViolationRestrictedKey    ViolationKind = "restricted-key"
	ViolationBackNavigation   ViolationKind = "back-navigation"
)

// Cause maps a violation to the termination cause it produces.
func (k ViolationKind) Cause() TerminationCause {
	return TerminationCause(k)
}

// ResultSummary is the scored outcome of one session.
type ResultSummary struct {
	Topic          string  `json:"topic"`
	Total          int     `json:"total"`
	Attempted      int     `json:"attempted"`
	Correct        int     `json:"correct"`
	Wrong          int     `json:"wrong"`
	NotAttempted   int     `json:"notAttempted"`
	Percentage     float64 `json:"percentage"`
	ElapsedSeconds int     `json:"elapsedSeconds"`
	AttemptID      string  `json:"attemptId"`
}

// Validate checks the count invariants of the summary.
func (s ResultSummary) Validate() error {
	if s.Total < 0 || s.Correct < 0 || s.Wrong < 0 || s.NotAttempted < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidResult)
	}
	if s.Attempted != s.Correct+s.Wrong {
		return fmt.Errorf("%w: attempted %d != correct %d + wrong %d", ErrInvalidResult, s.Attempted, s.Correct, s.Wrong)
	}
	if s.NotAttempted != s.Total-s.Attempted {
		return fmt.Errorf("%w: not attempted %d != total %d - attempted %d", ErrInvalidResult, s.NotAttempted, s.Total, s.Attempted)
	}
	return nil
}

// Submission builds the storage payload for a user.
func (s ResultSummary) Submission(userID, username string) ResultSubmission {
	return ResultSubmission{
		UserID:         userID,
		Username:       username,
		Topic:          FormatTopic(s.Topic),
		TotalQuestions: s.Total,
		CorrectAnswers: s.Correct,
		WrongAnswers:   s.Wrong,
		NotAttempted:   s.NotAttempted,
		TimeTaken:      s.ElapsedSeconds,
		AttemptID:      s.AttemptID,
	}
}

// ResultSubmission is the body of POST /results.
type ResultSubmission struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Topic          string `json:"topic"`
	TotalQuestions int    `json:"totalQuestions"`
	CorrectAnswers int    `json:"correctAnswers"`
	WrongAnswers   int    `json:"wrongAnswers"`
	NotAttempted   int    `json:"notAttempted"`
	TimeTaken      int    `json:"timeTaken"`
	AttemptID      string `json:"attemptId"`
}

// Validate enforces the server-side invariants on a submission.
func (s ResultSubmission) Validate() error {
	switch {
	case s.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidResult)
	case s.Username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidResult)
	case s.Topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidResult)
	case s.AttemptID == "":
		return fmt.Errorf("%w: attemptId is required", ErrInvalidResult)
	case s.TimeTaken < 0:
		return fmt.Errorf("%w: timeTaken must not be negative", ErrInvalidResult)
	case s.TotalQuestions < 0 || s.CorrectAnswers < 0 || s.WrongAnswers < 0 || s.NotAttempted < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidResult)
	}
	if sum := s.CorrectAnswers + s.WrongAnswers + s.NotAttempted; sum != s.TotalQuestions {
		return fmt.Errorf("%w: answer counts sum to %d, expected %d", ErrInvalidResult, sum, s.TotalQuestions)
	}
	return nil
}

// AttemptRecord is a persisted submission. Immutable after write.
type AttemptRecord struct {
	ResultSubmission
	Partition string    `json:"partition"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChartData drives the participation chart.
type ChartData struct {
	Dates  []time.Time `json:"dates"`
	Topics []string    `json:"topics"`
}

// TopicStats aggregates every attempt of one user on one topic.
type TopicStats struct {
	Attempts       int `json:"attempts"`
	TotalQuestions int `json:"totalQuestions"`
	Attempted      int `json:"attempted"`
	Correct        int `json:"correctAnswers"`
	Wrong          int `json:"wrongAnswers"`
	NotAttempted   int `json:"notAttempted"`
}
