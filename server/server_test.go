package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyzinh/system-hospital-backend/pkg/corpus"
	"github.com/tonyzinh/system-hospital-backend/pkg/index"
	"github.com/tonyzinh/system-hospital-backend/pkg/ingest"
	"github.com/tonyzinh/system-hospital-backend/pkg/llm"
	"github.com/tonyzinh/system-hospital-backend/pkg/logging"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
	"github.com/tonyzinh/system-hospital-backend/pkg/processor"
	"github.com/tonyzinh/system-hospital-backend/pkg/rag"
	"github.com/tonyzinh/system-hospital-backend/pkg/scraper"
	"github.com/tonyzinh/system-hospital-backend/pkg/store"
)

type wordEmbedder struct{}

func (wordEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 32)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			for d := range v {
				h := fnv.New32a()
				fmt.Fprintf(h, "%s/%d", word, d)
				v[d] += float32(h.Sum32()%2001)/1000 - 1
			}
		}
		llm.Normalize(v)
		out[i] = v
	}
	return out, nil
}

// fakeOllama answers /api/chat with a fixed reply, or fails with status.
type fakeOllama struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newFakeOllama(t *testing.T) *fakeOllama {
	f := &fakeOllama{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if code := int(f.status.Load()); code != 0 {
			http.Error(w, "model not loaded", code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Olá! Como posso ajudar?"},"done":true}`)
	}))
	t.Cleanup(f.Close)
	return f
}

type testEnv struct {
	server *Server
	ollama *fakeOllama
	corpus *corpus.Corpus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ollama := newFakeOllama(t)
	logger := logging.Discard()
	m := metrics.New()

	dataDir := t.TempDir()
	c, err := corpus.New(dataDir)
	require.NoError(t, err)
	fs, err := store.NewFileStore(filepath.Join(dataDir, "index"))
	require.NoError(t, err)

	idx := index.NewManager(index.ManagerConfig{}, c, wordEmbedder{}, fs, m, logger)
	chat := llm.NewChatClient(llm.ChatConfig{BaseURL: ollama.URL, Model: "llama3.1"})
	orch := orchestrator.New(orchestrator.Config{
		Model:        "llama3.1",
		CacheEnabled: true,
		MaxRetries:   1,
	}, chat, orchestrator.NewMemoryCache(100), m, logger)
	pipeline := ingest.NewPipeline(
		ingest.PipelineConfig{},
		scraper.NewWithConfig(scraper.ScraperConfig{RateLimit: 100}),
		processor.NewWithConfig(processor.ProcessorConfig{}),
		c, m, logger,
	)

	srv := New(Config{}, Service{
		Index:        idx,
		Synthesizer:  rag.New(idx, 3),
		Orchestrator: orch,
		Ingest:       pipeline,
		Metrics:      m,
		Logger:       logger,
	})
	return &testEnv{server: srv, ollama: ollama, corpus: c}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestAnswer(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty question", func(t *testing.T) {
		w, body := env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "question é obrigatório.", body["detail"])
	})

	t.Run("missing body", func(t *testing.T) {
		w, body := env.do(t, http.MethodPost, "/ai/answer", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "question é obrigatório.", body["detail"])
	})

	t.Run("answers and caches", func(t *testing.T) {
		w, body := env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": "Oi"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Olá! Como posso ajudar?", body["answer"])
		assert.NotEmpty(t, w.Header().Get(requestIDHeader))

		calls := env.ollama.calls.Load()
		w, _ = env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": "Oi"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, calls, env.ollama.calls.Load())
	})
}

func TestAnswerUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ollama.status.Store(http.StatusInternalServerError)

	w, body := env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": "Qual o horário de visitas?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["detail"], "500")
	assert.Equal(t, int32(1), env.ollama.calls.Load())

	w, body = env.do(t, http.MethodPost, "/ai/answer-advanced", map[string]string{"question": "Qual o horário de visitas?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["detail"], "after 2 attempts")
	assert.Equal(t, int32(3), env.ollama.calls.Load())
}

func TestChatWithHistory(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/ai/chat", map[string]any{
		"question": "E para crianças?",
		"history": []map[string]string{
			{"role": "user", "content": "Qual a dose de paracetamol?"},
			{"role": "assistant", "content": "500mg a cada 6 horas."},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["answer"])
}

func TestChatCacheIgnoresKeyOrder(t *testing.T) {
	env := newTestEnv(t)

	w, first := env.do(t, http.MethodPost, "/ai/chat",
		json.RawMessage(`{"question":"E agora?","history":[{"role":"user","content":"Oi"}]}`))
	require.Equal(t, http.StatusOK, w.Code)
	w, second := env.do(t, http.MethodPost, "/ai/chat",
		json.RawMessage(`{"history":[{"content":"Oi","role":"user"}],"question":"E agora?"}`))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, first["answer"], second["answer"])
	assert.Equal(t, int32(1), env.ollama.calls.Load())
}

func TestSearchUsesSeedCorpus(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/ai/search", map[string]any{"question": index.SeedTexts[1]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(body["answer"].(string), "Resposta baseada em trechos:\n- Ibuprofeno"))
	assert.Len(t, body["results"], 3)
}

func TestIngestURL(t *testing.T) {
	env := newTestEnv(t)
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>Bula</title></head><body><article>%s</article></body></html>", strings.Repeat("b", 1300))
	}))
	defer page.Close()

	w, body := env.do(t, http.MethodPost, "/ai/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["total_docs"], "seed corpus")

	w, body = env.do(t, http.MethodPost, "/ai/ingest-url", map[string]string{"url": page.URL})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(2), body["chunks_created"])
	assert.Equal(t, float64(2), body["total_docs"])

	w, body = env.do(t, http.MethodPost, "/ai/ingest-url", map[string]string{"url": "ftp://example.org/a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL não suportada (apenas http/https).", body["detail"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/ai/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["ollama_ok"])

	env.ollama.status.Store(http.StatusServiceUnavailable)
	w, body = env.do(t, http.MethodGet, "/ai/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["ollama_ok"])
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": "Oi"})

	w, body := env.do(t, http.MethodGet, "/ai/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["size"])
	assert.Equal(t, float64(100), body["max_size"])
	assert.Equal(t, true, body["enabled"])

	w, body = env.do(t, http.MethodPost, "/ai/cache/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["message"])

	_, body = env.do(t, http.MethodGet, "/ai/cache/stats", nil)
	assert.Equal(t, float64(0), body["size"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/ai/answer", map[string]string{"question": "Oi"})

	w, _ := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hospital_ai_cache_misses_total 1")
	assert.Contains(t, w.Body.String(), "hospital_ai_http_request_duration_seconds")
}

func TestWebSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ai/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: "question", Content: "Oi"}))
	var reply Frame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "answer", reply.Type)
	assert.Equal(t, "Olá! Como posso ajudar?", reply.Content)

	require.NoError(t, conn.WriteJSON(Frame{Type: "question", Content: " "}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "question é obrigatório.", reply.Content)

	require.NoError(t, conn.WriteJSON(Frame{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
}
