package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aina-notebook/internal/config"
	"aina-notebook/internal/export"
	"aina-notebook/internal/model"
	"aina-notebook/internal/retry"
	"aina-notebook/internal/service"
	"aina-notebook/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubContent struct {
	release chan struct{}
}

func (s *stubContent) Generate(ctx context.Context, topic string, lang model.Language, band model.AgeBand) ([]model.SlideDraft, error) {
	if s.release != nil {
		<-s.release
	}
	return []model.SlideDraft{
		{Title: "L'evaporació", Content: "El sol escalfa l'aigua.", ImagePrompt: "sun"},
		{Title: "La pluja", Content: "Les gotes cauen.", ImagePrompt: "rain"},
	}, nil
}

type stubImages struct{}

func (stubImages) Generate(ctx context.Context, imagePrompt string, style model.Style) (string, error) {
	return "data:image/png;base64,iVBORw0KGgo=", nil
}

type testEnv struct {
	router  *gin.Engine
	store   *storage.MemoryStore
	service *service.GenerationService
	content *stubContent
	gate    *AccessGate
}

func newTestEnv(t *testing.T, password string) *testEnv {
	t.Helper()

	cfg := &config.Config{
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
		},
		Access: config.AccessConfig{Password: password, CookieName: "aina_access", SessionTTL: time.Hour},
	}

	store := storage.NewMemoryStore()
	content := &stubContent{}
	svc := service.NewGenerationService(content, stubImages{}, store, service.Options{
		ImagePolicy: retry.Policy{MaxAttempts: 2, Delay: time.Millisecond},
	})
	gate := NewAccessGate(cfg.Access, model.LanguageCatalan)
	presentations := NewPresentationHandler(svc, store, export.NewPDFExporter(), model.LanguageCatalan).
		WithHeartbeat(time.Hour)

	return &testEnv{
		router:  NewRouter(cfg, presentations, gate, nil),
		store:   store,
		service: svc,
		content: content,
		gate:    gate,
	}
}

func (e *testEnv) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T) *model.Presentation {
	t.Helper()
	p := model.NewShell("2024-03-01T10:00:00.000Z", "El cicle de l'aigua", model.Styles[7], model.LanguageCatalan, []model.SlideDraft{
		{Title: "Un", Content: "Primer text", ImagePrompt: "one"},
		{Title: "Dos", Content: "Segon text", ImagePrompt: "two"},
	})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	p.Slides[0].ImageURL = model.EncodeDataURL("image/png", buf.Bytes())
	require.NoError(t, e.store.Append(context.Background(), p))
	return p
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var events []sseEvent
	var current sseEvent
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data += strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStyles(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/styles", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp catalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Styles, 10)
	require.Len(t, resp.AgeBands, 2)
	assert.Equal(t, "6-8", resp.AgeBands[0].Name)
}

func TestGenerate_Stream(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/api/presentations", `{"topic":"El cicle de l'aigua","style":"Aquarel·la de Somni"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventProgress, events[0].name)

	last := events[len(events)-1]
	require.Equal(t, model.EventDone, last.name)
	var done model.GenerationEvent
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))
	require.NotNil(t, done.Presentation)
	assert.Len(t, done.Presentation.Slides, 2)
	assert.Zero(t, done.Presentation.MissingImages())

	list, err := env.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerate_Invalid(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/api/presentations", `{"topic":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/presentations", `{"topic":"Els volcans","style":"Cubisme","language":"es"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Este estilo no existe.")

	w = env.do(http.MethodPost, "/api/presentations", `{"topic":"   ","style":"Foto Antiga"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Escriu un tema")
}

func TestGenerate_Busy(t *testing.T) {
	env := newTestEnv(t, "")
	env.content.release = make(chan struct{})

	job, err := env.service.NewJob(model.GenerateRequest{Topic: "Els planetes", Style: "Món de Lego"})
	require.NoError(t, err)
	events, err := env.service.Start(context.Background(), job)
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/api/presentations", `{"topic":"Els dinosaures","style":"Foto Antiga"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Ja s'està creant una presentació")

	w = env.do(http.MethodGet, "/api/generation/status", "")
	assert.Contains(t, w.Body.String(), `"busy":true`)

	close(env.content.release)
	for range events {
	}

	w = env.do(http.MethodGet, "/api/generation/status", "")
	assert.Contains(t, w.Body.String(), `"busy":false`)
	assert.Contains(t, w.Body.String(), `"last_outcome":"done"`)
}

func TestPresentations_ListGetClear(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/api/presentations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	p := env.seed(t)

	w = env.do(http.MethodGet, "/api/presentations", "")
	var list []*model.Presentation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	w = env.do(http.MethodGet, "/api/presentations/"+p.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "El cicle de l'aigua")

	w = env.do(http.MethodGet, "/api/presentations/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/presentations", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/presentations", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRetrySlide(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.seed(t)

	w := env.do(http.MethodPost, "/api/presentations/"+p.ID+"/slides/0/retry", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/presentations/"+p.ID+"/slides/5/retry", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/presentations/"+p.ID+"/slides/abc/retry", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/presentations/missing/slides/1/retry", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/presentations/"+p.ID+"/slides/1/retry", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.RetryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Warning)
	assert.True(t, resp.Presentation.Slides[1].HasImage())

	saved, err := env.store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, saved.MissingImages())
}

func TestPDF(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.seed(t)

	w := env.do(http.MethodGet, "/api/presentations/"+p.ID+"/pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="el_cicle_de_laigua.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	w = env.do(http.MethodGet, "/api/presentations/nope/pdf", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/presentations/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(lines)
	}()

	next := func() []*model.Presentation {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed")
			var list []*model.Presentation
			require.NoError(t, json.Unmarshal([]byte(line), &list))
			return list
		case <-time.After(3 * time.Second):
			t.Fatal("no history event")
			return nil
		}
	}

	assert.Empty(t, next())

	p := env.seed(t)
	list := next()
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestAccessGate(t *testing.T) {
	env := newTestEnv(t, "drac")

	w := env.do(http.MethodGet, "/api/styles", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/access", "")
	assert.JSONEq(t, `{"required":true,"granted":false}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/access", `{"password":"gat"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Contrasenya incorrecta.")

	req := httptest.NewRequest(http.MethodPost, "/api/access", strings.NewReader(`{"password":"gat"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "Contraseña incorrecta.")

	w = env.do(http.MethodPost, "/api/access", `{"password":"drac"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "aina_access", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	w = env.do(http.MethodGet, "/api/styles", "", cookies[0])
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/styles", "", &http.Cookie{Name: "aina_access", Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.gate.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w = env.do(http.MethodGet, "/api/styles", "", cookies[0])
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccessGate_Logout(t *testing.T) {
	env := newTestEnv(t, "drac")

	w := env.do(http.MethodPost, "/api/access", `{"password":"drac"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := w.Result().Cookies()[0]

	w = env.do(http.MethodDelete, "/api/access", "", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/styles", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccessGate_Disabled(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/api/access", "")
	assert.JSONEq(t, `{"required":false,"granted":true}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/access", `{"password":"anything"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestSPA(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>aina</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	spa := NewSPA(dir)
	assert.True(t, spa.Available())
	assert.False(t, NewSPA(t.TempDir()).Available())

	router := gin.New()
	router.NoRoute(spa.Handle)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	w := get("/assets/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = get("/biblioteca/2024")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aina")

	w = get("/api/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
