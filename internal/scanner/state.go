package scanner

import "github.com/vbonduro/calscan/internal/domain"

// Operation is one of the three user-triggered requests.
type Operation int

const (
	OpAnalyze Operation = iota
	OpRecipe
	OpAlternative
)

func (op Operation) String() string {
	switch op {
	case OpRecipe:
		return "recipe"
	case OpAlternative:
		return "alternative"
	default:
		return "analyze"
	}
}

// Kind is the result kind a successful op produces.
func (op Operation) Kind() domain.ResultKind {
	switch op {
	case OpRecipe:
		return domain.KindRecipe
	case OpAlternative:
		return domain.KindAlternative
	default:
		return domain.KindAnalysis
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseInFlight
	phaseSucceeded
	phaseFailed
)

// Failure is the surfaced error of a failed operation.
type Failure struct {
	Kind    ErrorKind
	Message string
}

// state is a tagged union: only the fields of the current phase are set.
//
//	Idle
//	InFlight(op)
//	Succeeded(result)
//	Failed(failure)
type state struct {
	phase   phase
	op      Operation
	result  domain.AnalysisResult
	failure Failure
}

type eventKind int

const (
	evSelected eventKind = iota
	evStarted
	evSucceeded
	evFailed
	evAbandoned
)

type event struct {
	kind    eventKind
	op      Operation
	result  domain.AnalysisResult
	failure Failure
}

// next is the only place the scanner state changes. Every transition builds
// a fresh value, so at most one result kind or one error is ever visible.
func next(s state, ev event) state {
	switch ev.kind {
	case evSelected:
		// A selection never interrupts a request; the request resolves
		// through its own completion path.
		if s.phase == phaseInFlight {
			return s
		}
		return state{phase: phaseIdle}
	case evStarted:
		if s.phase == phaseInFlight {
			return s
		}
		return state{phase: phaseInFlight, op: ev.op}
	case evSucceeded:
		if s.phase != phaseInFlight {
			return s
		}
		return state{phase: phaseSucceeded, result: ev.result}
	case evFailed:
		if s.phase == phaseInFlight && ev.failure.Kind == ErrorBusy {
			return s
		}
		return state{phase: phaseFailed, failure: ev.failure}
	case evAbandoned:
		if s.phase != phaseInFlight {
			return s
		}
		return state{phase: phaseIdle}
	default:
		return s
	}
}

func (s state) requestState() domain.RequestState {
	switch s.phase {
	case phaseInFlight:
		return domain.StateInFlight
	case phaseFailed:
		return domain.StateError
	default:
		return domain.StateIdle
	}
}
