package constraints

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"constraintkit/internal/logging"
	"constraintkit/internal/logic"
	"constraintkit/internal/project"
)

var (
	// ErrSequenceConsumed is yielded when a query sequence is ranged twice.
	ErrSequenceConsumed = errors.New("query sequence already consumed")
	// ErrThreadBusy is yielded when a thread already has a sequence in flight.
	ErrThreadBusy = errors.New("thread has an unfinished query")
	// ErrAnswerTimeout is yielded when one answer takes longer than the
	// session's query timeout.
	ErrAnswerTimeout = errors.New("timed out waiting for answer")
)

// SessionOptions tunes a session.
type SessionOptions struct {
	// ID correlates log lines; generated when empty.
	ID string
	// FactLimit caps derived facts per query. Zero means no cap.
	FactLimit int
	// QueryTimeout bounds waiting for one answer. Zero means no bound.
	QueryTimeout time.Duration
}

// Session owns one knowledge base built from a project and a rule source.
// After NewSession returns the knowledge base is read-only and any number of
// threads may query it concurrently.
type Session struct {
	ID string

	project *project.Project
	kb      *logic.KnowledgeBase
	opts    SessionOptions
	log     *logging.RequestLogger
}

// NewSession builds the knowledge base in three sequential steps: project
// linkage, the support library, then facts with the rule source and hook
// fallbacks. Any failure aborts with a translated *LogicError.
func NewSession(ctx context.Context, p *project.Project, ruleSource string, opts SessionOptions) (*Session, error) {
	Init()

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	s := &Session{
		ID:      opts.ID,
		project: p,
		kb:      logic.NewKnowledgeBase(logic.Options{FactLimit: opts.FactLimit}),
		opts:    opts,
		log:     logging.WithRequestID(logging.CategorySession, opts.ID),
	}

	timer := logging.StartTimer(logging.CategorySession, "session init")
	defer timer.Stop()

	if p == nil {
		p = &project.Project{}
		s.project = p
	}
	if err := s.kb.Link(ctx, workspaceFieldLink(p)); err != nil {
		return nil, s.initFailed("linkage", err)
	}
	if err := s.kb.ConsultModule(ctx, SupportModule); err != nil {
		return nil, s.initFailed("support library", err)
	}

	facts := BuildFactBase(p)
	offset := strings.Count(facts, "\n")
	logging.Session("session %s: %d workspaces, %d bytes of rules", s.ID, len(p.Workspaces), len(ruleSource))
	source := facts + ruleSource + "\n" + hookFallbacks()
	if err := s.kb.Consult(ctx, source, logic.WithLineOffset(offset)); err != nil {
		return nil, s.initFailed("rules", err)
	}
	if err := s.kb.Seal(); err != nil {
		return nil, s.initFailed("seal", err)
	}

	s.log.Info("session ready: %d workspaces", len(p.Workspaces))
	return s, nil
}

func (s *Session) initFailed(step string, err error) error {
	s.log.Error("session init failed at %s: %v", step, err)
	translated := asLogicError(err)
	var le *LogicError
	if errors.As(translated, &le) {
		return le
	}
	return fmt.Errorf("session init (%s): %w", step, err)
}

// Project returns the project the session was built from.
func (s *Session) Project() *project.Project {
	return s.project
}

// CreateThread allocates an independent resolution context.
func (s *Session) CreateThread() *Thread {
	logging.SessionDebug("session %s: new thread", s.ID)
	return &Thread{session: s, lt: s.kb.NewThread()}
}

// Thread runs one query at a time against its session.
type Thread struct {
	session *Session
	lt      *logic.Thread
	busy    atomic.Bool
}

// MakeQuery returns a lazy sequence of the query's solutions. The query is
// issued on the first pull and answers are requested one at a time. An
// exception ends the sequence with a *LogicError. The sequence can be ranged
// only once, and the thread rejects a second sequence while one is in flight.
func (t *Thread) MakeQuery(ctx context.Context, text string) iter.Seq2[logic.Solution, error] {
	var consumed atomic.Bool
	return func(yield func(logic.Solution, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(logic.Solution{}, ErrSequenceConsumed)
			return
		}
		if !t.busy.CompareAndSwap(false, true) {
			yield(logic.Solution{}, ErrThreadBusy)
			return
		}
		defer t.busy.Store(false)

		t.session.log.Debug("query: %s", text)
		if err := t.lt.Query(text); err != nil {
			yield(logic.Solution{}, err)
			return
		}

		for {
			answer, err := t.next(ctx)
			if err != nil {
				yield(logic.Solution{}, err)
				return
			}
			switch a := answer.(type) {
			case logic.Solution:
				if !yield(a, nil) {
					return
				}
			case logic.Thrown:
				le := TranslateError(a.Term)
				t.session.log.Debug("query failed: %s", le.Message)
				yield(logic.Solution{}, le)
				return
			case logic.Exhausted:
				return
			}
		}
	}
}

// next bridges one callback-style answer into a single-slot channel.
func (t *Thread) next(ctx context.Context) (logic.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan logic.Answer, 1)
	t.lt.Answer(func(a logic.Answer) { ch <- a })

	var timeout <-chan time.Time
	if d := t.session.opts.QueryTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrAnswerTimeout
	}
}
