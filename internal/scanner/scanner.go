package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vbonduro/calscan/internal/ai"
	"github.com/vbonduro/calscan/internal/domain"
)

// Recorder receives every completed result. It is optional.
type Recorder interface {
	Record(ctx context.Context, kind domain.ResultKind, mimeType, text string) error
}

// Orchestrator owns one user's selected image and result state and runs the
// analysis, recipe and alternative requests against a Generator.
type Orchestrator struct {
	gen    ai.Generator
	rec    Recorder
	logger *slog.Logger

	mu    sync.Mutex
	image *domain.SelectedImage
	// epoch increments on every selection; a request started under an older
	// epoch has its result dropped.
	epoch uint64
	st    state
}

func NewOrchestrator(gen ai.Generator, rec Recorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{gen: gen, rec: rec, logger: logger}
}

// SelectImage replaces the selected image and clears any result or error.
// A nil image clears the selection.
func (o *Orchestrator) SelectImage(img *domain.SelectedImage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.image = img
	o.epoch++
	o.st = next(o.st, event{kind: evSelected})
	if img != nil {
		o.logger.Debug("image selected", "name", img.Name, "mime_type", img.MimeType, "bytes", img.Size)
	}
}

// Image returns the currently selected image, or nil.
func (o *Orchestrator) Image() *domain.SelectedImage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.image
}

func (o *Orchestrator) RunAnalysis(ctx context.Context) (*domain.AnalysisResult, error) {
	return o.run(ctx, OpAnalyze)
}

func (o *Orchestrator) RunRecipe(ctx context.Context) (*domain.AnalysisResult, error) {
	return o.run(ctx, OpRecipe)
}

func (o *Orchestrator) RunAlternative(ctx context.Context) (*domain.AnalysisResult, error) {
	return o.run(ctx, OpAlternative)
}

// Run dispatches op; it is what the transports call. A nil error always comes
// with a non-nil result. When the image is replaced while the request is in
// flight, the answer is discarded and ErrSuperseded is returned.
func (o *Orchestrator) Run(ctx context.Context, op Operation) (*domain.AnalysisResult, error) {
	return o.run(ctx, op)
}

// begin checks the preconditions of op and moves to InFlight. It returns the
// image to send (analysis) or the analysis text to build on (follow-ups).
func (o *Orchestrator) begin(op Operation) (img *domain.SelectedImage, prior string, epoch uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.st.phase == phaseInFlight {
		return nil, "", 0, ErrBusy
	}

	switch op {
	case OpAnalyze:
		if o.image == nil {
			err = ErrNoImageSelected
		}
		img = o.image
	default:
		if o.st.phase != phaseSucceeded || o.st.result.Kind != domain.KindAnalysis || o.st.result.Text == "" {
			err = ErrPrecondition
		}
		prior = o.st.result.Text
	}
	if err != nil {
		o.st = next(o.st, event{kind: evFailed, failure: Failure{Kind: Classify(err), Message: UserMessage(op, err)}})
		return nil, "", 0, err
	}

	o.st = next(o.st, event{kind: evStarted, op: op})
	return img, prior, o.epoch, nil
}

func (o *Orchestrator) run(ctx context.Context, op Operation) (res *domain.AnalysisResult, err error) {
	img, prior, epoch, err := o.begin(op)
	if err != nil {
		o.logFailure(op, err)
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%s panicked: %v", op, p)
		}
		res, err = o.complete(ctx, op, epoch, img, res, err)
	}()

	req := ai.Request{}
	switch op {
	case OpAnalyze:
		payload, err := EncodeImage(ctx, img)
		if err != nil {
			return nil, err
		}
		req.Prompt = analysisPrompt
		req.Image = payload
	case OpRecipe:
		req.Prompt = recipePrompt(prior)
	case OpAlternative:
		req.Prompt = alternativePrompt(prior)
	}

	o.logger.Info("ai request started", "op", op.String())
	text, err := o.gen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &domain.AnalysisResult{Kind: op.Kind(), Text: text}, nil
}

// complete leaves InFlight on every exit path of run and records successful
// results. It returns what the caller should see: a request whose image was
// replaced meanwhile yields ErrSuperseded whatever its outcome.
func (o *Orchestrator) complete(ctx context.Context, op Operation, epoch uint64, img *domain.SelectedImage, res *domain.AnalysisResult, err error) (*domain.AnalysisResult, error) {
	o.mu.Lock()
	stale := epoch != o.epoch
	switch {
	case stale:
		o.st = next(o.st, event{kind: evAbandoned})
	case err != nil:
		o.st = next(o.st, event{kind: evFailed, failure: Failure{Kind: Classify(err), Message: UserMessage(op, err)}})
	default:
		o.st = next(o.st, event{kind: evSucceeded, result: *res})
	}
	o.mu.Unlock()

	if stale {
		o.logger.Info("ai result dropped, image changed during request", "op", op.String(), "error", err)
		return nil, ErrSuperseded
	}
	if err != nil {
		o.logFailure(op, err)
		return nil, err
	}

	o.logger.Info("ai request complete", "op", op.String(), "kind", string(res.Kind), "chars", len(res.Text))
	if o.rec != nil {
		mimeType := ""
		if img != nil {
			mimeType = img.MimeType
		}
		if rerr := o.rec.Record(ctx, res.Kind, mimeType, res.Text); rerr != nil {
			o.logger.Error("failed to record result", "op", op.String(), "error", rerr)
		}
	}
	return res, nil
}

func (o *Orchestrator) logFailure(op Operation, err error) {
	attrs := []any{"op", op.String(), "error_kind", Classify(err).String(), "error", err}
	var terr *ai.TransportError
	if errors.As(err, &terr) {
		attrs = append(attrs, "status", terr.StatusCode)
	}
	switch Classify(err) {
	case ErrorNoImageSelected, ErrorPrecondition, ErrorBusy:
		o.logger.Warn("scan operation rejected", attrs...)
	default:
		o.logger.Error("scan operation failed", attrs...)
	}
}

// Snapshot is a consistent copy of the orchestrator state for rendering.
type Snapshot struct {
	RequestState domain.RequestState
	Operation    Operation
	Result       *domain.AnalysisResult
	ErrorKind    ErrorKind
	Error        string
	Image        *domain.SelectedImage
	// ImageVersion changes with every selection.
	ImageVersion uint64
}

// CanFollowUp reports whether a recipe or alternative may be requested.
func (s Snapshot) CanFollowUp() bool {
	return s.RequestState != domain.StateInFlight && s.Result != nil && s.Result.Kind == domain.KindAnalysis
}

func (s Snapshot) InFlight() bool {
	return s.RequestState == domain.StateInFlight
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		RequestState: o.st.requestState(),
		Image:        o.image,
		ImageVersion: o.epoch,
	}
	switch o.st.phase {
	case phaseInFlight:
		snap.Operation = o.st.op
	case phaseSucceeded:
		r := o.st.result
		snap.Result = &r
	case phaseFailed:
		snap.ErrorKind = o.st.failure.Kind
		snap.Error = o.st.failure.Message
	}
	return snap
}

// RequestState is Idle, InFlight or Error.
func (o *Orchestrator) RequestState() domain.RequestState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st.requestState()
}

// Result returns the displayed result, or nil when there is none.
func (o *Orchestrator) Result() *domain.AnalysisResult {
	return o.Snapshot().Result
}
