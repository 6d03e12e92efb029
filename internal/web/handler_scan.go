package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vbonduro/calscan/internal/domain"
	"github.com/vbonduro/calscan/internal/scanner"
)

const (
	maxPhotoSize      = 20 * 1024 * 1024 // 20 MB
	sessionCookieName = "calscan_session"
)

// imageMIME prefers the declared type, as a browser file picker reports it,
// and falls back to sniffing.
func imageMIME(declared string, data []byte) (string, bool) {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if strings.HasPrefix(declared, "image/") {
		return declared, true
	}
	return domain.SniffImageMIME(data)
}

// orchestrator returns the caller's session, issuing a cookie for new ones.
func (s *Server) orchestrator(w http.ResponseWriter, r *http.Request) *scanner.Orchestrator {
	var id string
	if c, err := r.Cookie(sessionCookieName); err == nil {
		id = c.Value
	}
	sid, o, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return o
}

// scanView is the template data for the scanner page and result partial.
type scanView struct {
	scanner.Snapshot
	ActiveNav string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator(w, r)
	if err := s.renderPage(w,
		scanView{Snapshot: o.Snapshot(), ActiveNav: "scan"},
		"base.html", "pages/index.html", "partials/result.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+1024*1024)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		http.Error(w, "Nie udało się odczytać formularza.", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Proszę wybrać zdjęcie jedzenia.", http.StatusBadRequest)
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Nie udało się odczytać pliku.", http.StatusInternalServerError)
		s.logger.Error("read upload failed", "error", err)
		return
	}

	mimeType, ok := imageMIME(header.Header.Get("Content-Type"), imageData)
	if !ok {
		http.Error(w, "Wybrany plik nie jest obrazem.", http.StatusUnsupportedMediaType)
		return
	}

	o.SelectImage(domain.NewImageFromBytes(header.Filename, mimeType, imageData))
	s.respond(w, r, o, http.StatusOK)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator(w, r)
	img := o.Image()
	if img == nil {
		http.NotFound(w, r)
		return
	}

	rc, err := img.Open()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(rc, "image preview", s.logger)

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("write image failed", "error", err)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.handleRun(w, r, scanner.OpAnalyze)
}

func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	s.handleRun(w, r, scanner.OpRecipe)
}

func (s *Server) handleAlternative(w http.ResponseWriter, r *http.Request) {
	s.handleRun(w, r, scanner.OpAlternative)
}

// handleRun executes op for the caller's session. The AI call is detached
// from the client connection so that it always resolves through its own
// completion path, even if the browser goes away.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, op scanner.Operation) {
	o := s.orchestrator(w, r)
	_, err := o.Run(context.WithoutCancel(r.Context()), op)
	s.respond(w, r, o, statusFor(err))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator(w, r)
	writeJSON(w, http.StatusOK, newStateResponse(o.Snapshot()), s.logger)
}

// handlePanel returns the result partial; an in-flight panel polls it until
// the request resolves.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator(w, r)
	if err := s.renderPartial(w, "partials/result.html", scanView{Snapshot: o.Snapshot()}); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// respond renders the current state in the form the client asked for: JSON,
// an HTMX partial, or a redirect back to the page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, o *scanner.Orchestrator, status int) {
	snap := o.Snapshot()
	switch {
	case wantsJSON(r):
		writeJSON(w, status, newStateResponse(snap), s.logger)
	case isHTMX(r):
		if err := s.renderPartial(w, "partials/result.html", scanView{Snapshot: snap}); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// statusFor maps a scanner error to the status returned to JSON clients.
func statusFor(err error) int {
	switch scanner.Classify(err) {
	case scanner.ErrorNone, scanner.ErrorSuperseded:
		return http.StatusOK
	case scanner.ErrorNoImageSelected, scanner.ErrorPrecondition:
		return http.StatusBadRequest
	case scanner.ErrorBusy:
		return http.StatusConflict
	case scanner.ErrorTransport, scanner.ErrorEmptyResponse:
		return http.StatusBadGateway
	case scanner.ErrorEncoding:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type resultJSON struct {
	Kind    domain.ResultKind `json:"kind"`
	Heading string            `json:"heading"`
	Text    string            `json:"text"`
}

type errorJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type imageJSON struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type stateResponse struct {
	State     string      `json:"state"`
	Operation string      `json:"operation,omitempty"`
	Result    *resultJSON `json:"result,omitempty"`
	Error     *errorJSON  `json:"error,omitempty"`
	Image     *imageJSON  `json:"image,omitempty"`
}

func newStateResponse(snap scanner.Snapshot) stateResponse {
	resp := stateResponse{State: snap.RequestState.String()}
	if snap.InFlight() {
		resp.Operation = snap.Operation.String()
	}
	if snap.Result != nil {
		resp.Result = &resultJSON{Kind: snap.Result.Kind, Heading: snap.Result.Kind.Heading(), Text: snap.Result.Text}
	}
	if snap.Error != "" {
		resp.Error = &errorJSON{Kind: snap.ErrorKind.String(), Message: snap.Error}
	}
	if snap.Image != nil {
		resp.Image = &imageJSON{Name: snap.Image.Name, MimeType: snap.Image.MimeType, Size: snap.Image.Size}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write json failed", "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
