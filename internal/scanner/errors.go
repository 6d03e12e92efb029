package scanner

import (
	"errors"

	"github.com/vbonduro/calscan/internal/ai"
)

var (
	ErrNoImageSelected = errors.New("no image selected")
	ErrPrecondition    = errors.New("no analysis to build on")
	ErrEmptyResponse   = errors.New("ai returned no text")
	ErrEncoding        = errors.New("failed to encode image")
	ErrBusy            = errors.New("a request is already in flight")
	// ErrSuperseded is not a failure: the image changed and the answer
	// belonged to the previous one.
	ErrSuperseded      = errors.New("image changed during request")
)

// ErrorKind classifies a failed operation for display and logging.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorNoImageSelected
	ErrorPrecondition
	ErrorTransport
	ErrorEmptyResponse
	ErrorEncoding
	ErrorBusy
	ErrorSuperseded
	ErrorOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorNoImageSelected:
		return "no_image_selected"
	case ErrorPrecondition:
		return "precondition"
	case ErrorTransport:
		return "transport"
	case ErrorEmptyResponse:
		return "empty_response"
	case ErrorEncoding:
		return "encoding"
	case ErrorBusy:
		return "busy"
	case ErrorSuperseded:
		return "superseded"
	default:
		return "other"
	}
}

// Classify maps an error returned by the scanner to its kind.
func Classify(err error) ErrorKind {
	var terr *ai.TransportError
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, ErrNoImageSelected):
		return ErrorNoImageSelected
	case errors.Is(err, ErrPrecondition):
		return ErrorPrecondition
	case errors.Is(err, ErrEmptyResponse):
		return ErrorEmptyResponse
	case errors.Is(err, ErrEncoding):
		return ErrorEncoding
	case errors.Is(err, ErrBusy):
		return ErrorBusy
	case errors.Is(err, ErrSuperseded):
		return ErrorSuperseded
	case errors.As(err, &terr):
		return ErrorTransport
	default:
		return ErrorOther
	}
}

// UserMessage is the short Polish text shown for err raised by op.
func UserMessage(op Operation, err error) string {
	switch Classify(err) {
	case ErrorNone, ErrorSuperseded:
		return ""
	case ErrorNoImageSelected:
		return "Proszę wybrać zdjęcie jedzenia."
	case ErrorPrecondition:
		return "Proszę najpierw zeskanować jedzenie."
	case ErrorEmptyResponse:
		return "Brak odpowiedzi od AI. Spróbuj ponownie."
	case ErrorBusy:
		return "Trwa przetwarzanie poprzedniego żądania."
	}
	switch op {
	case OpRecipe:
		return "Wystąpił błąd podczas generowania przepisu. Spróbuj ponownie."
	case OpAlternative:
		return "Wystąpił błąd podczas sugerowania alternatywy. Spróbuj ponownie."
	default:
		return "Wystąpił błąd podczas analizy. Spróbuj ponownie."
	}
}
