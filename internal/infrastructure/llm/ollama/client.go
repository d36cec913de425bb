package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

func (c *Client) EmbedModel() string {
	return c.embedModel
}

func (c *Client) post(ctx context.Context, endpoint, model string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(endpoint, model, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// Embedder calls /api/embed in batches. The same model must be used for
// index build and query time.
type Embedder struct {
	client    *Client
	batchSize int
}

func NewEmbedder(client *Client, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Embedder{client: client, batchSize: batchSize}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.post(callCtx, "embed", e.client.embedModel, request, &response); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classify)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, classify)
	}
	return vectors, nil
}

// Completer runs a single non-streaming generation with sampling disabled.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (g *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
			"seed":        0,
		},
	}

	text, err := resilience.Call(ctx, g.client.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := g.client.post(callCtx, "generate", g.client.genModel, reqBody, &response); err != nil {
			return "", err
		}
		return response.Response, nil
	}, classify)
	if err != nil {
		return "", resilience.WrapTemporary("ollama generate", err, classify)
	}
	return strings.TrimSpace(text), nil
}
