package domain

import "errors"

var (
	// ErrTopicNotFound is returned when the question bank has no questions for a topic.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrSessionNotFound is returned when no live session exists for an attempt.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option is not offered by the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSessionNotActive is returned for operations that need an Active (or Terminated) session.
	ErrSessionNotActive = errors.New("quiz session not active")
	// ErrSessionTerminated is returned when input arrives after the session has ended.
	ErrSessionTerminated = errors.New("quiz session terminated")
	// ErrInvalidResult marks a result payload that breaks a count invariant; never retried.
	ErrInvalidResult = errors.New("invalid result")
	// ErrDuplicateAttempt is returned by stores when the attempt was already persisted.
	ErrDuplicateAttempt = errors.New("attempt already recorded")
	// ErrSubmissionFailed is the permanent failure after the retry ceiling is reached.
	ErrSubmissionFailed = errors.New("results could not be saved")
)
