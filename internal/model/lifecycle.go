package model

import apperrors "github.com/shhac/wirebench/internal/errors"

// LifecycleState is the execution state shared by HTTP and gRPC records.
type LifecycleState int

const (
	Idle LifecycleState = iota
	InFlight
	Completed
	Failed
	Cancelled
)

// String returns a human-readable representation of the state
func (s LifecycleState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InFlight:
		return "InFlight"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state ends an attempt.
func (s LifecycleState) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Generation identifies one attempt on a record. Write-backs carrying an
// older generation are dropped.
type Generation uint64

// Failure is the captured outcome of a transport error.
type Failure struct {
	Title   string
	Message string
	Details string
}

// FailureFrom classifies err into a Failure.
func FailureFrom(err error) Failure {
	r := apperrors.Classify(err)
	if r == nil {
		return Failure{}
	}
	return Failure{Title: r.Title, Message: r.Message, Details: r.Details}
}

// lifecycle is the attempt bookkeeping embedded in records. All access
// happens under the owning record's lock.
type lifecycle struct {
	status LifecycleState
	gen    Generation
}

func (l *lifecycle) begin(op string) (Generation, error) {
	if l.status == InFlight {
		return 0, apperrors.InvalidState(op, "an attempt is already in flight")
	}
	l.gen++
	l.status = InFlight
	return l.gen, nil
}

func (l *lifecycle) current(gen Generation) bool {
	return l.status == InFlight && l.gen == gen
}

// cancel invalidates the running attempt and returns its generation. It
// reports false when nothing was in flight.
func (l *lifecycle) cancel() (Generation, bool) {
	if l.status != InFlight {
		return 0, false
	}
	gen := l.gen
	l.gen++
	l.status = Cancelled
	return gen, true
}
