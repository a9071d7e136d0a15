package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tonyzinh/system-hospital-backend/internal/types"
	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
)

// ChatConfig represents the configuration for the Ollama chat client.
type ChatConfig struct {
	BaseURL        string // Ollama server URL
	Model          string
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ChatClient calls Ollama's /api/chat without streaming. Each call is bounded
// twice: the dial by the connect timeout, the whole exchange by the response
// timeout.
type ChatClient struct {
	config ChatConfig
	client *http.Client
	dial   dialFunc
}

type connectTimeoutKey struct{}

func NewChatClient(config ChatConfig) *ChatClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = "llama3.1"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	c := &ChatClient{config: config}
	c.dial = (&net.Dialer{KeepAlive: 30 * time.Second}).DialContext

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         c.dialContext,
		TLSHandshakeTimeout: config.ConnectTimeout,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	c.client = &http.Client{Transport: transport}
	return c
}

func (c *ChatClient) Model() string {
	return c.config.Model
}

func (c *ChatClient) BaseURL() string {
	return c.config.BaseURL
}

func (c *ChatClient) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	connect := c.config.ConnectTimeout
	if d, ok := ctx.Value(connectTimeoutKey{}).(time.Duration); ok && d > 0 {
		connect = d
	}
	dctx, cancel := context.WithTimeout(ctx, connect)
	defer cancel()
	return c.dial(dctx, network, addr)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Message *chatMessage `json:"message"`
	Done    bool         `json:"done"`
}

// Generate returns the assistant content, which may be empty.
func (c *ChatClient) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	responseTimeout := req.Timeout.Response
	if responseTimeout <= 0 {
		responseTimeout = c.config.Timeout
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, responseTimeout)
	defer cancel()
	if req.Timeout.Connect > 0 {
		ctx = context.WithValue(ctx, connectTimeoutKey{}, req.Timeout.Connect)
	}

	var connected atomic.Bool
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classify(parent, err, connected.Load(), start)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(parent, err, true, start)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apperr.UpstreamError{
			Kind:    apperr.KindStatus,
			Status:  resp.StatusCode,
			Body:    truncate(strings.TrimSpace(string(body)), 512),
			Elapsed: time.Since(start),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &apperr.UpstreamError{
			Kind:    apperr.KindMalformed,
			Body:    truncate(string(body), 512),
			Elapsed: time.Since(start),
			Err:     err,
		}
	}
	if out.Message == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// classify maps a transport failure onto an upstream error kind. A deadline
// set by the caller is a generic timeout; our own bounds are attributed to the
// connect or read phase depending on whether a connection was obtained.
func classify(parent context.Context, err error, connected bool, start time.Time) error {
	kind := apperr.KindTransport
	if isTimeout(err) {
		switch {
		case errors.Is(parent.Err(), context.DeadlineExceeded):
			kind = apperr.KindTimeout
		case !connected:
			kind = apperr.KindConnectTimeout
		default:
			kind = apperr.KindReadTimeout
		}
	}
	return &apperr.UpstreamError{Kind: kind, Elapsed: time.Since(start), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
