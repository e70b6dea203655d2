package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"docqa/internal/llmservice/llmtest"
	"docqa/internal/models"
	"docqa/internal/rag"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type staticIndex struct{ chunks []models.Chunk }

func (s staticIndex) Query(_ context.Context, _ string, k int) ([]models.Chunk, error) {
	return s.chunks[:min(k, len(s.chunks))], nil
}

type fakeIngester struct {
	sources []string
	fail    map[string]error
}

func (f *fakeIngester) IngestFileAs(_ context.Context, path, source string) (int, error) {
	if err := f.fail[source]; err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	f.sources = append(f.sources, source+":"+string(data))
	return 1, nil
}

func (f *fakeIngester) IngestURL(_ context.Context, url string) (int, error) {
	if err := f.fail[url]; err != nil {
		return 0, err
	}
	f.sources = append(f.sources, url)
	return 2, nil
}

type fixture struct {
	server   *Server
	llm      *llmtest.Scripted
	ingester *fakeIngester
}

func newFixture(t *testing.T, chunks []models.Chunk) *fixture {
	t.Helper()
	llm := &llmtest.Scripted{Reply: "Acme made $4M."}
	pipeline := rag.NewPipeline(rag.PipelineOptions{
		Retriever: rag.NewRetriever(staticIndex{chunks: chunks}, rag.DefaultK),
		Rewriter:  rag.NewQueryRewriter(llm),
		Composer:  rag.NewComposer(llm, rag.ComposerOptions{}),
	})
	ing := &fakeIngester{fail: map[string]error{}}
	srv := New(pipeline, ing, rag.NewSessionManager(), Options{
		DefaultModel: "gemini-2.0-flash",
		Models:       []string{"gemini-2.0-flash", "gemini-pro"},
		RAGEnabled:   true,
	})
	return &fixture{server: srv, llm: llm, ingester: ing}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Session  rag.SessionView `json:"session"`
		Greeting string          `json:"greeting"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.GreetingIndexLoaded, resp.Greeting)
	assert.Equal(t, "gemini-2.0-flash", resp.Session.Model)
	assert.Empty(t, resp.Session.History)
	return resp.Session.ID
}

func TestAskFlow(t *testing.T) {
	f := newFixture(t, []models.Chunk{{Content: "Acme revenue was $4M.", Source: "report.pdf"}})
	id := f.createSession(t)

	w := f.do(t, http.MethodPost, "/sessions/"+id+"/messages", gin.H{"query": "What is the revenue?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var answer rag.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	assert.Equal(t, "Acme made $4M.", answer.Text)
	assert.Equal(t, []string{"report.pdf"}, answer.Sources)

	w = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	var view rag.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.History, 2)

	w = f.do(t, http.MethodDelete, "/sessions/"+id+"/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Empty(t, view.History)
}

func TestAskEmptyIndex(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createSession(t)

	w := f.do(t, http.MethodPost, "/sessions/"+id+"/messages", gin.H{"query": "What is the revenue?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "couldn't find relevant information")
}

func TestAskGenerationFailure(t *testing.T) {
	f := newFixture(t, []models.Chunk{{Content: "Acme", Source: "a.txt"}})
	f.llm.Err = errors.New("quota exceeded")
	id := f.createSession(t)

	w := f.do(t, http.MethodPost, "/sessions/"+id+"/messages", gin.H{"query": "revenue?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"generation"`)

	w = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	var view rag.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Empty(t, view.History)
}

func TestUpdateSession(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createSession(t)

	w := f.do(t, http.MethodPatch, "/sessions/"+id, gin.H{"model": "gemini-pro", "rag_enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	var view rag.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "gemini-pro", view.Model)
	assert.False(t, view.RAGEnabled)

	w = f.do(t, http.MethodPatch, "/sessions/"+id, gin.H{"model": "gpt-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/sessions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/sessions/nope/messages", gin.H{"query": "x"}).Code)
}

func TestInsights(t *testing.T) {
	f := newFixture(t, []models.Chunk{{Content: "Globex competes with Acme.", Source: "market.csv"}})
	id := f.createSession(t)

	w := f.do(t, http.MethodGet, "/insights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "competitor-analysis")

	w = f.do(t, http.MethodPost, "/sessions/"+id+"/insights/competitor-analysis", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	calls := f.llm.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1].Messages
	assert.Contains(t, llmText(last[len(last)-1].Parts), "Identify and compare the main competitors")

	w = f.do(t, http.MethodPost, "/sessions/"+id+"/insights/astrology", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadDocuments(t *testing.T) {
	f := newFixture(t, nil)
	f.ingester.fail["broken.pdf"] = models.Errorf(models.ErrIngestion, "extract", "not a pdf")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{
		"notes.txt":  "Acme revenue",
		"broken.pdf": "garbage",
		"logo.png":   "png",
	} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []fileResult `json:"results"`
		Chunks  int          `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.Chunks)
	assert.Equal(t, []string{"notes.txt:Acme revenue"}, f.ingester.sources)

	errs := 0
	for _, r := range resp.Results {
		if r.Error != "" {
			errs++
		}
	}
	assert.Equal(t, 2, errs)
}

func TestIngestURL(t *testing.T) {
	f := newFixture(t, nil)
	f.ingester.fail["https://down.example.com"] = models.Errorf(models.ErrIngestion, "fetch", "timeout")

	w := f.do(t, http.MethodPost, "/urls", gin.H{"url": "https://example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunks":2`)

	w = f.do(t, http.MethodPost, "/urls", gin.H{"url": "https://down.example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/urls", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"index":true`))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(rag.ErrEmptyQuery))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(models.Errorf(models.ErrRetrieval, "query", "corrupt")))
	assert.Equal(t, http.StatusBadGateway, statusFor(models.Errorf(models.ErrEmbedding, "embed", "down")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func llmText(parts []llms.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func TestBrokenIndexIsReported(t *testing.T) {
	llm := &llmtest.Scripted{Reply: "general knowledge answer"}
	pipeline := rag.NewPipeline(rag.PipelineOptions{
		Retriever: rag.NewRetriever(staticIndex{}, rag.DefaultK),
		IndexSize: func(context.Context) (int, error) { return 0, errors.New("connection refused") },
		Composer:  rag.NewComposer(llm, rag.ComposerOptions{}),
	})
	f := &fixture{
		server: New(pipeline, &fakeIngester{}, rag.NewSessionManager(), Options{DefaultModel: "m", RAGEnabled: true}),
		llm:    llm,
	}

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/sessions", nil).Code)
	assert.Empty(t, llm.Calls())
}

func TestEmptyIndexGreeting(t *testing.T) {
	llm := &llmtest.Scripted{Reply: "general knowledge answer"}
	pipeline := rag.NewPipeline(rag.PipelineOptions{
		Retriever: rag.NewRetriever(staticIndex{}, rag.DefaultK),
		IndexSize: func(context.Context) (int, error) { return 0, nil },
		Composer:  rag.NewComposer(llm, rag.ComposerOptions{}),
	})
	srv := New(pipeline, &fakeIngester{}, rag.NewSessionManager(), Options{DefaultModel: "m", RAGEnabled: true})
	f := &fixture{server: srv, llm: llm}

	w := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), models.GreetingNoIndex)

	var resp struct {
		Session rag.SessionView `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	w = f.do(t, http.MethodPost, "/sessions/"+resp.Session.ID+"/messages", gin.H{"query": "What is the revenue?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "couldn't find relevant information")
	assert.Empty(t, llm.Calls())
}
