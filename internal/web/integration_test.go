package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/calscan/internal/ai"
	"github.com/vbonduro/calscan/internal/db"
	"github.com/vbonduro/calscan/internal/domain"
	"github.com/vbonduro/calscan/internal/scanner"
	"github.com/vbonduro/calscan/internal/session"
	"github.com/vbonduro/calscan/internal/store"
	"github.com/vbonduro/calscan/internal/web"
	"github.com/vbonduro/calscan/internal/web/templates"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

// scriptedGenerator answers each call with the next scripted reply.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	images  []*domain.EncodedPayload
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	g.images = append(g.images, req.Image)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

// gatedGenerator blocks every call until release is closed.
type gatedGenerator struct {
	started chan struct{}
	release chan struct{}
	text    string
}

func (g *gatedGenerator) Generate(ctx context.Context, _ ai.Request) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	gen    *scriptedGenerator
	scans  *store.ScanStore
}

func newTestEnv(t *testing.T, gen *scriptedGenerator) *testEnv {
	t.Helper()
	env := newTestEnvWith(t, gen)
	env.gen = gen
	return env
}

func newTestEnvWith(t *testing.T, gen ai.Generator) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	scans := store.NewScanStore(d)

	registry := session.NewRegistry(100, time.Hour, func() *scanner.Orchestrator {
		return scanner.NewOrchestrator(gen, scans, logger)
	}, logger)

	srv := httptest.NewServer(web.NewServer(registry, scans, templates.FS, logger))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{server: srv, client: client, scans: scans}
}

type stateBody struct {
	State     string `json:"state"`
	Operation string `json:"operation"`
	Result    *struct {
		Kind    string `json:"kind"`
		Heading string `json:"heading"`
		Text    string `json:"text"`
	} `json:"result"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	Image *struct {
		Name     string `json:"name"`
		MimeType string `json:"mime_type"`
	} `json:"image"`
}

func (e *testEnv) upload(t *testing.T, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="image"; filename="obiad.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/image", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string) (int, stateBody) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body stateBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (e *testEnv) get(t *testing.T, path string, headers ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestFullScanFlow(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Schabowy z ziemniakami\nok. 850 kcal",
		"Składniki:\n- schab\nKroki:\n1. Rozbij mięso",
	}}
	env := newTestEnv(t, gen)

	resp := env.upload(t, "image/jpeg", minimalJPEG)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body := env.postJSON(t, "/analyze")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, body.Result)
	assert.Equal(t, "analysis", body.Result.Kind)
	assert.Equal(t, "Wynik analizy:", body.Result.Heading)
	assert.Equal(t, "Schabowy z ziemniakami\nok. 850 kcal", body.Result.Text)
	assert.Equal(t, "idle", body.State)

	require.Len(t, gen.images, 1)
	require.NotNil(t, gen.images[0])
	assert.Equal(t, "image/jpeg", gen.images[0].MimeType)

	status, body = env.postJSON(t, "/recipe")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "recipe", body.Result.Kind)
	assert.Equal(t, "Wygenerowany przepis:", body.Result.Heading)
	assert.Contains(t, gen.prompts[1], "Schabowy z ziemniakami\nok. 850 kcal")

	scans, err := env.scans.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}

func TestAnalyzeWithoutImage(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"x"}}
	env := newTestEnv(t, gen)

	status, body := env.postJSON(t, "/analyze")

	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "Proszę wybrać zdjęcie jedzenia.", body.Error.Message)
	assert.Equal(t, "error", body.State)
	assert.Empty(t, gen.prompts)
}

func TestRecipeBeforeAnalysis(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	resp := env.upload(t, "image/jpeg", minimalJPEG)
	resp.Body.Close()

	status, body := env.postJSON(t, "/alternative")

	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "Proszę najpierw zeskanować jedzenie.", body.Error.Message)
	assert.Empty(t, gen.prompts)
}

func TestAnalyzeTransportFailure(t *testing.T) {
	gen := &scriptedGenerator{err: ai.NewTransportError("gemini", 500, "", "")}
	env := newTestEnv(t, gen)
	resp := env.upload(t, "image/jpeg", minimalJPEG)
	resp.Body.Close()

	status, body := env.postJSON(t, "/analyze")

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "error", body.State)
	require.NotNil(t, body.Error)
	assert.Equal(t, "transport", body.Error.Kind)
	assert.Equal(t, "Wystąpił błąd podczas analizy. Spróbuj ponownie.", body.Error.Message)
	assert.Nil(t, body.Result)
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	resp := env.upload(t, "text/plain", []byte("hello, not an image"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestImagePreview(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	resp, _ := env.get(t, "/image")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()

	resp, body := env.get(t, "/image")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, string(minimalJPEG), body)
}

func TestIndexPageRendersResult(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Zupa pomidorowa <b>200 kcal</b>"}}
	env := newTestEnv(t, gen)

	resp, body := env.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Skaner Kalorii")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()
	_, _ = env.postJSON(t, "/analyze")

	_, body = env.get(t, "/")
	assert.Contains(t, body, "Wynik analizy:")
	assert.Contains(t, body, "Zupa pomidorowa &lt;b&gt;200 kcal&lt;/b&gt;")
	assert.Contains(t, body, "Generuj Przepis")
	assert.Contains(t, body, "Zdrowsza Alternatywa")
}

func TestFormPostRedirects(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/analyze", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHTMXAnalyzeReturnsPartial(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{replies: []string{"Omlet, 350 kcal"}})
	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("HX-Request", "true")
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(b)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="panel"`)
	assert.Contains(t, body, "Omlet, 350 kcal")
	assert.NotContains(t, body, "<html")
}

func TestSessionsAreIsolated(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"analiza A"}}
	env := newTestEnv(t, gen)
	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()
	_, _ = env.postJSON(t, "/analyze")

	// A second client without the cookie sees a fresh session.
	other := &http.Client{}
	resp, err := other.Get(env.server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body stateBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Nil(t, body.Result)
	assert.Nil(t, body.Image)
}

func TestHistoryPages(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})
	ctx := context.Background()
	scan, err := env.scans.Create(ctx, domain.KindAnalysis, "image/jpeg", "Pierogi ruskie, 500 kcal")
	require.NoError(t, err)
	_, err = env.scans.Create(ctx, domain.KindRecipe, "", "Przepis na bigos")
	require.NoError(t, err)

	resp, body := env.get(t, "/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Pierogi ruskie")
	assert.Contains(t, body, "Przepis na bigos")

	resp, body = env.get(t, "/history?q=bigos", "HX-Request", "true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Przepis na bigos")
	assert.NotContains(t, body, "Pierogi")
	assert.False(t, strings.Contains(body, "<html"))

	resp, body = env.get(t, "/history/"+itoa(scan.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Wynik analizy:")

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/history/"+itoa(scan.ID), nil)
	require.NoError(t, err)
	del, err := env.client.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusOK, del.StatusCode)

	resp, _ = env.get(t, "/history/"+itoa(scan.ID))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

var buttonTag = regexp.MustCompile(`<button[^>]*>`)

func htmxPost(t *testing.T, env *testEnv, path string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("HX-Request", "true")
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInFlightPanelDisablesEveryAction(t *testing.T) {
	gen := &gatedGenerator{started: make(chan struct{}, 1), release: make(chan struct{}), text: "Kotlet, 600 kcal"}
	env := newTestEnvWith(t, gen)
	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()

	var once sync.Once
	release := func() { once.Do(func() { close(gen.release) }) }
	t.Cleanup(release)

	done := make(chan string, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/analyze", nil)
		req.Header.Set("HX-Request", "true")
		resp, err := env.client.Do(req)
		if err != nil {
			done <- err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		done <- string(b)
	}()
	<-gen.started

	_, polled := env.get(t, "/panel", "HX-Request", "true")
	busy := htmxPost(t, env, "/recipe")

	for name, body := range map[string]string{"poll": polled, "busy": busy} {
		tags := buttonTag.FindAllString(body, -1)
		require.NotEmpty(t, tags, name)
		for _, tag := range tags {
			assert.Contains(t, tag, "disabled", "%s: %s", name, tag)
		}
		assert.Contains(t, body, `hx-get="/panel"`, name)
		assert.Contains(t, body, "Analizuję...", name)
		assert.NotContains(t, body, "Generuj Przepis", name)
	}

	release()
	final := <-done
	assert.Contains(t, final, "Kotlet, 600 kcal")
	assert.NotContains(t, final, `hx-get="/panel"`)
	for _, tag := range buttonTag.FindAllString(final, -1) {
		assert.NotContains(t, tag, "disabled")
	}
}

func TestActionFormsDisableWholePanel(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{replies: []string{"Owsianka, 300 kcal"}})
	up := env.upload(t, "image/jpeg", minimalJPEG)
	up.Body.Close()

	body := htmxPost(t, env, "/analyze")

	assert.Equal(t, 3, strings.Count(body, `hx-disabled-elt="#panel button"`))
	assert.Equal(t, 3, strings.Count(body, `hx-sync="#panel:drop"`))
	assert.NotContains(t, body, `hx-disabled-elt="find button"`)
}
