/*
orchestrator.go - Validate → fan-out submission state machine

STATES:
  Idle ──▶ Validating ──▶ Rejected
                 │
                 ▼
               Ready ──▶ Submitting ──▶ Committed
                                  │
                                  └──▶ Failed

VALIDATION ORDER (short-circuits, nothing sent yet):
  (a) start and end not in the future
  (b) hours bounds, per entry to create
  (c) overlap against the caller's snapshot, overlap-checked categories only

FAN-OUT:
  Single mode issues one create. Multi mode issues one create per project
  concurrently. Committed needs every create to succeed. The first failure
  is reported at once as Failed, with the unsettled projects in Pending;
  those creates keep running and are never cancelled. Wait (or Done)
  yields the settled result. Successful creates are never rolled back.
  A 409 from persistence is reported as *OverlapError.

SNAPSHOT:
  The orchestrator caches nothing. Callers pass a fresh snapshot every
  time and must refresh it after a commit, or a duplicate of the entry
  they just created will slip past the local check (the backend still
  rejects it).
*/
package actuals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/actuals-engine/generic"
	"go.uber.org/zap"
)

// State is a submission state.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateCommitted || s == StateFailed
}

// Orchestrator composes the validators and the persistence fan-out.
type Orchestrator struct {
	Creator EntryCreator
	Clock   func() generic.TimePoint
	Logger  *zap.Logger
}

// NewOrchestrator builds an orchestrator using today's date as the clock.
func NewOrchestrator(creator EntryCreator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{Creator: creator, Clock: generic.Today, Logger: logger}
}

// SubmissionResult reports where a submission ended up.
type SubmissionResult struct {
	Request SubmissionRequest
	State   State
	// Trace is every state visited, starting at StateIdle.
	Trace []State

	// Rejection is set when State is StateRejected.
	Rejection error

	// Committed holds the created entries, ordered by project.
	Committed []ActualEntry
	// Failures maps project to error when State is StateFailed.
	Failures map[string]error
	// Pending lists projects whose create was still in flight when the
	// failure was reported. Empty once settled.
	Pending []string

	settled chan struct{}
	final   *SubmissionResult
}

var closedCh = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done is closed once every create of the submission has settled.
func (r *SubmissionResult) Done() <-chan struct{} {
	if r.settled == nil {
		return closedCh
	}
	return r.settled
}

// Wait blocks until every create has settled and returns the complete
// result. r itself is never modified after Submit returns.
func (r *SubmissionResult) Wait() *SubmissionResult {
	if r.settled == nil {
		return r
	}
	<-r.settled
	return r.final
}

func (r *SubmissionResult) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Err returns the rejection, the *SubmissionError of a failed fan-out, or nil.
func (r *SubmissionResult) Err() error {
	switch r.State {
	case StateRejected:
		return r.Rejection
	case StateFailed:
		committed := make([]string, 0, len(r.Committed))
		for _, e := range r.Committed {
			committed = append(committed, e.Project)
		}
		return &SubmissionError{Failed: r.Failures, Committed: committed, Pending: r.Pending}
	}
	return nil
}

// FailedProjects lists projects whose create failed, sorted.
func (r *SubmissionResult) FailedProjects() []string {
	if r.State != StateFailed {
		return nil
	}
	var se *SubmissionError
	if errors.As(r.Err(), &se) {
		return se.FailedProjects()
	}
	return nil
}

// Apply carries the outcome back into the form. A commit clears the
// draft. A failed multi-project submit keeps only the failed projects so
// the user resubmits those alone; it waits for in-flight creates first.
// A rejection leaves the draft untouched.
func (r *SubmissionResult) Apply(d Draft) Draft {
	r = r.Wait()
	switch r.State {
	case StateCommitted:
		return d.Reset()
	case StateFailed:
		if d.Allocation == nil || d.Allocation.Pinned() {
			return d
		}
		remaining := *d.Allocation
		remaining.Allocation = d.Allocation.Allocation.Only(r.FailedProjects())
		return d.WithAllocation(remaining)
	}
	return d
}

// Validate runs the checks in fixed order and returns the first failure.
// It has no side effects.
func (o *Orchestrator) Validate(req SubmissionRequest, snapshot []ActualEntry) error {
	req = o.Normalize(req)
	if err := validateShape(req); err != nil {
		return err
	}

	today := o.today()
	if err := rejectIfFuture("start", req.Start, today); err != nil {
		return err
	}
	if err := rejectIfFuture("end", req.End, today); err != nil {
		return err
	}

	lines := req.Lines()
	for _, line := range lines {
		if err := checkHoursBounds(line.Project, line.Start, line.End, line.Hours); err != nil {
			return err
		}
	}

	if !req.Category.OverlapChecked() {
		return nil
	}
	for _, line := range lines {
		if hit := FindOverlap(snapshot, line.Candidate()); hit != nil {
			return &OverlapError{
				ConflictingEntryID: hit.ID,
				Project:            line.Project,
				Period:             req.Period(),
				Source:             ConflictLocal,
			}
		}
	}
	return nil
}

// Submit validates req against snapshot and, when it passes, persists it.
// The result is non-nil unless the orchestrator has no Creator; the
// error is result.Err().
func (o *Orchestrator) Submit(ctx context.Context, req SubmissionRequest, snapshot []ActualEntry) (*SubmissionResult, error) {
	if o.Creator == nil {
		return nil, errors.New("orchestrator has no entry creator")
	}
	req = o.Normalize(req)
	result := &SubmissionResult{Request: req}
	result.enter(StateIdle)

	log := o.logger().With(
		zap.String("owner_id", string(req.OwnerID)),
		zap.String("category", string(req.Category)),
		zap.Stringer("mode", req.Mode()),
	)

	result.enter(StateValidating)
	if err := o.Validate(req, snapshot); err != nil {
		result.Rejection = err
		result.enter(StateRejected)
		log.Info("submission rejected", zap.Error(err))
		return result, err
	}
	result.enter(StateReady)

	lines := req.Lines()
	result.enter(StateSubmitting)
	log.Debug("submitting", zap.Int("entries", len(lines)))

	results := o.fanOut(ctx, lines)
	outcomes := make([]*createOutcome, len(lines))
	for received := 1; received <= len(lines); received++ {
		out := <-results
		outcomes[out.index] = &out
		logOutcome(log, lines[out.index], out)
		if out.err != nil && received < len(lines) {
			return o.failEarly(result, lines, outcomes, results, received, log)
		}
	}

	result.record(lines, outcomes)
	if len(result.Failures) > 0 {
		result.enter(StateFailed)
		return result, result.Err()
	}
	result.enter(StateCommitted)
	log.Info("submission committed", zap.Int("entries", len(result.Committed)))
	return result, nil
}

// failEarly reports Failed while creates are still in flight. The
// returned result is frozen; a copy collects the remaining outcomes and
// becomes available through Wait.
func (o *Orchestrator) failEarly(result *SubmissionResult, lines []CreateRequest, outcomes []*createOutcome, results <-chan createOutcome, received int, log *zap.Logger) (*SubmissionResult, error) {
	final := *result
	final.Trace = append([]State(nil), result.Trace...)

	result.record(lines, outcomes)
	result.enter(StateFailed)
	result.settled = make(chan struct{})
	log.Warn("submission failed with creates in flight", zap.Strings("pending", result.Pending))

	go func() {
		for ; received < len(lines); received++ {
			out := <-results
			outcomes[out.index] = &out
			logOutcome(log, lines[out.index], out)
		}
		final.record(lines, outcomes)
		final.enter(StateFailed)
		result.final = &final
		close(result.settled)
	}()
	return result, result.Err()
}

// record sorts outcomes into Committed, Failures and Pending, in line order.
func (r *SubmissionResult) record(lines []CreateRequest, outcomes []*createOutcome) {
	r.Committed, r.Failures, r.Pending = nil, nil, nil
	for i, out := range outcomes {
		switch {
		case out == nil:
			r.Pending = append(r.Pending, lines[i].Project)
		case out.err != nil:
			if r.Failures == nil {
				r.Failures = make(map[string]error)
			}
			r.Failures[lines[i].Project] = out.err
		default:
			r.Committed = append(r.Committed, *out.entry)
		}
	}
}

func logOutcome(log *zap.Logger, line CreateRequest, out createOutcome) {
	if out.err == nil {
		return
	}
	log.Warn("create failed",
		zap.String("project", line.Project),
		zap.Bool("retryable", IsRetryable(out.err)),
		zap.Error(out.err))
}

type createOutcome struct {
	index int
	entry *ActualEntry
	err   error
}

// fanOut issues every create concurrently and delivers outcomes as they
// settle. The channel is buffered so no sender blocks once the caller
// stops reading. Creates outlive ctx's cancellation: once issued, a
// request runs until the transport settles it.
func (o *Orchestrator) fanOut(ctx context.Context, lines []CreateRequest) <-chan createOutcome {
	ctx = context.WithoutCancel(ctx)
	results := make(chan createOutcome, len(lines))
	for i, line := range lines {
		go func(i int, line CreateRequest) {
			out := o.create(ctx, line)
			out.index = i
			results <- out
		}(i, line)
	}
	return results
}

func (o *Orchestrator) create(ctx context.Context, line CreateRequest) createOutcome {
	entry, err := o.Creator.CreateEntry(ctx, line)
	if err != nil {
		return createOutcome{err: asOverlap(err, line)}
	}
	if entry == nil {
		return createOutcome{err: &PersistenceError{Kind: PersistenceTransient, Message: "empty create response"}}
	}
	return createOutcome{entry: entry}
}

// Normalize enforces derived fields: leave hours always come from the
// working-day count, whatever the payload carried. Validate and Submit
// apply it themselves.
func (o *Orchestrator) Normalize(req SubmissionRequest) SubmissionRequest {
	if !req.Category.Valid() {
		return req
	}
	switch req.Category.HoursMode() {
	case HoursEntered:
	case HoursFromLeave:
		req.Allocation = nil
		if !req.Start.IsZero() && !req.End.IsZero() {
			req.Hours = ComputeLeaveHours(req.Start, req.End, req.Project)
		}
	}
	return req
}

func validateShape(req SubmissionRequest) error {
	if !req.Category.Valid() {
		return fmt.Errorf("%w: %q", generic.ErrUnknownCategory, string(req.Category))
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", generic.ErrInvalidPeriod)
	}
	switch req.Mode() {
	case ModeSingle:
		if req.Project == "" {
			return fmt.Errorf("%w: project is required", generic.ErrEmptySubmission)
		}
	case ModeMulti:
		if len(req.Allocation) == 0 {
			return generic.ErrEmptySubmission
		}
		for project := range req.Allocation {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("%w: allocation has a blank project", generic.ErrEmptySubmission)
			}
		}
	}
	return nil
}

func (o *Orchestrator) today() generic.TimePoint {
	if o.Clock == nil {
		return generic.Today()
	}
	return o.Clock()
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
