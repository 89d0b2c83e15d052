// Package reconcile drives one report through extraction, manual completion of
// missing features and submission.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/a3tai/cardiopredict/internal/features"
	"github.com/a3tai/cardiopredict/internal/matcher"
	"github.com/a3tai/cardiopredict/internal/predict"
)

// State is the position of a Session in its lifecycle
type State int

const (
	AwaitingFile State = iota
	Extracting
	Matched
	AwaitingManualInput
	Submitting
	Completed
	Failed
	SubmissionFailed
)

func (s State) String() string {
	switch s {
	case AwaitingFile:
		return "awaiting_file"
	case Extracting:
		return "extracting"
	case Matched:
		return "matched"
	case AwaitingManualInput:
		return "awaiting_manual_input"
	case Submitting:
		return "submitting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case SubmissionFailed:
		return "submission_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBusy is returned when an operation is issued while another is in flight
	ErrBusy = errors.New("another operation is in progress")
	// ErrInvalidState is returned when an operation is not allowed in the current state
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrUnknownField is returned for manual entries outside the missing set
	ErrUnknownField = errors.New("field is not missing")
)

// IncompleteError lists the features still missing after manual input
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d required field(s) still missing: %s", len(e.Missing), strings.Join(e.Missing, ", "))
}

// Extractor turns raw document bytes into text
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Submitter sends a complete record to the prediction service
type Submitter interface {
	Submit(ctx context.Context, record features.Record) (*predict.Result, error)
}

// Session holds the state of one report. A new Upload discards everything from the
// previous one.
type Session struct {
	schema    *features.Schema
	extractor Extractor
	matcher   matcher.Matcher
	submitter Submitter
	logger    *slog.Logger

	busy atomic.Bool

	mu        sync.RWMutex
	id        string
	state     State
	extracted features.Record
	manual    map[string]string
	final     features.Record
	missing   []string
	result    *predict.Result
	err       error
}

// Option configures a Session
type Option func(*Session)

// WithMatcher replaces the default regex matcher
func WithMatcher(m matcher.Matcher) Option {
	return func(s *Session) { s.matcher = m }
}

// WithLogger configures structured logging
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session waiting for a file
func NewSession(schema *features.Schema, extractor Extractor, submitter Submitter, opts ...Option) *Session {
	s := &Session{
		schema:    schema,
		extractor: extractor,
		matcher:   matcher.NewRegexMatcher(),
		submitter: submitter,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:     AwaitingFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() {
	s.busy.Store(false)
}

// Upload starts a new session for doc. It extracts and matches the text and, when
// nothing is missing, submits immediately. An incomplete record is not an error: the
// session moves to AwaitingManualInput.
func (s *Session) Upload(ctx context.Context, doc []byte) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	s.id = uuid.NewString()
	s.state = Extracting
	s.extracted = nil
	s.manual = make(map[string]string)
	s.final = nil
	s.missing = nil
	s.result = nil
	s.err = nil
	id := s.id
	s.mu.Unlock()

	logger := s.logger.With("session", id)
	logger.InfoContext(ctx, "extracting report", "bytes", len(doc))

	text, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		logger.WarnContext(ctx, "extraction failed", "error", err)
		s.setFailed(Failed, err)
		return err
	}

	record := s.matcher.Match(text, s.schema)
	missing := features.Missing(record, s.schema)
	logger.InfoContext(ctx, "report matched", "found", len(record), "missing", len(missing))

	s.mu.Lock()
	s.extracted = record
	s.final = record.Clone()
	s.missing = missing
	s.state = Matched
	if len(missing) > 0 {
		s.state = AwaitingManualInput
	}
	s.mu.Unlock()

	if len(missing) > 0 {
		return nil
	}
	return s.submit(ctx, logger)
}

// SetManual records a manual value for a missing feature. A blank value clears
// the entry.
func (s *Session) SetManual(name, value string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingManualInput {
		return fmt.Errorf("set %q in state %s: %w", name, s.state, ErrInvalidState)
	}
	if !contains(s.missing, name) {
		return fmt.Errorf("%q: %w", name, ErrUnknownField)
	}

	if strings.TrimSpace(value) == "" {
		delete(s.manual, name)
	} else {
		s.manual[name] = value
	}
	return nil
}

// SubmitManual merges manual entries over the extracted record and submits it
// once nothing is missing. Otherwise it returns an *IncompleteError and leaves the
// session waiting for more input.
func (s *Session) SubmitManual(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.state != AwaitingManualInput {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("submit in state %s: %w", state, ErrInvalidState)
	}

	final := features.Merge(s.extracted, s.manual)
	remaining := features.Missing(final, s.schema)
	if len(remaining) > 0 {
		s.mu.Unlock()
		return &IncompleteError{Missing: remaining}
	}
	s.final = final
	id := s.id
	s.mu.Unlock()

	return s.submit(ctx, s.logger.With("session", id))
}

// Retry resubmits the retained final record after a submission failure. Nothing
// is extracted or reconciled again.
func (s *Session) Retry(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.RLock()
	state, id := s.state, s.id
	s.mu.RUnlock()

	if state != SubmissionFailed {
		return fmt.Errorf("retry in state %s: %w", state, ErrInvalidState)
	}
	return s.submit(ctx, s.logger.With("session", id))
}

// submit must be called with the busy guard held
func (s *Session) submit(ctx context.Context, logger *slog.Logger) error {
	s.mu.Lock()
	record := s.final.Clone()
	if missing := features.Missing(record, s.schema); len(missing) > 0 {
		s.state = AwaitingManualInput
		s.missing = missing
		s.mu.Unlock()
		return &IncompleteError{Missing: missing}
	}
	s.state = Submitting
	s.err = nil
	s.mu.Unlock()

	logger.InfoContext(ctx, "submitting record", "features", len(record))

	result, err := s.submitter.Submit(ctx, record)
	if err != nil {
		logger.WarnContext(ctx, "submission failed", "error", err)
		s.setFailed(SubmissionFailed, err)
		return err
	}

	s.mu.Lock()
	s.result = result
	s.missing = nil
	s.manual = nil
	s.state = Completed
	s.mu.Unlock()

	logger.InfoContext(ctx, "prediction completed", "diseases", len(result.Predictions), "failed", len(result.Failed()))
	return nil
}

func (s *Session) setFailed(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.result = nil
	s.mu.Unlock()
}

// ID returns the identifier of the current upload, empty before the first one
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Missing returns the features still missing, with manual entries applied
func (s *Session) Missing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != AwaitingManualInput {
		return append([]string(nil), s.missing...)
	}
	return features.Missing(features.Merge(s.extracted, s.manual), s.schema)
}

// Extracted returns a copy of the record matched from the document
func (s *Session) Extracted() features.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.extracted == nil {
		return nil
	}
	return s.extracted.Clone()
}

// FinalRecord returns a copy of the merged record that was or will be submitted
func (s *Session) FinalRecord() features.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == AwaitingManualInput {
		return features.Merge(s.extracted, s.manual)
	}
	if s.final == nil {
		return nil
	}
	return s.final.Clone()
}

// Result returns the prediction result once Completed
func (s *Session) Result() *predict.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Err returns the error that moved the session into Failed or SubmissionFailed
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Schema returns the schema the session validates against
func (s *Session) Schema() *features.Schema {
	return s.schema
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
