// Package openai adapts the OpenAI API to the embedding and response
// generation capabilities consumed by the rag package. One client serves
// both capabilities; callers depend on the interfaces, not this type, so
// either side can be replaced independently.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEmbedModel produces 1536-dimension vectors.
	DefaultEmbedModel = string(openai.SmallEmbedding3)
	// DefaultChatModel is the generation model.
	DefaultChatModel = "gpt-4o-mini"

	// maxBatchInputs caps how many texts go into one embeddings request.
	// Larger ingests are split and embedded concurrently.
	maxBatchInputs = 512
)

const defaultSystemPrompt = `Eres un asistente virtual de KrediPlus, una plataforma financiera digital innovadora dedicada a democratizar el acceso al crédito para pequeñas y medianas empresas (PYMEs) y emprendedores.

Tu objetivo es responder preguntas de los usuarios basándote en el contexto proporcionado.

Reglas:
- Responde en español de manera clara, amigable y profesional
- Usa el contexto proporcionado para dar respuestas precisas
- Si la pregunta es muy general (como "hola", "qué sabes", etc.), presenta brevemente a KrediPlus y ofrece ayuda
- Si no encuentras información específica en el contexto, puedes dar información general sobre KrediPlus
- Sé conciso pero completo en tus respuestas
- Si el usuario pregunta algo completamente fuera del alcance de KrediPlus, redirige amablemente

Información básica de KrediPlus que siempre puedes mencionar:
- KrediPlus es una plataforma de crédito digital para PYMEs y emprendedores
- Ofrece acceso rápido y equitativo a crédito
- Simplifica procesos de solicitud y aprobación de créditos`

// Config holds the adapter settings. Zero values select the defaults.
type Config struct {
	APIKey     string
	EmbedModel string
	ChatModel  string
	MaxRetries int
	RetryDelay time.Duration
}

// Client implements rag.Embedder and rag.Generator against the OpenAI API.
type Client struct {
	api        *openai.Client
	embedModel openai.EmbeddingModel
	chatModel  string
	maxRetries int
	retryDelay time.Duration
}

// New creates a Client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		api:        openai.NewClient(cfg.APIKey),
		embedModel: openai.EmbeddingModel(cfg.EmbedModel),
		chatModel:  cfg.ChatModel,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embedding vectors for multiple texts, in input order.
// Oversized inputs are split into bounded batches embedded concurrently.
// Returns nil (not error) for empty/nil input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchInputs {
		return c.embedRequest(ctx, texts)
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to stay under provider rate limits.

	for start := 0; start < len(texts); start += maxBatchInputs {
		start := start
		end := min(start+maxBatchInputs, len(texts))
		g.Go(func() error {
			vecs, err := c.embedRequest(gCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch starting at %d: %w", start, err)
			}
			copy(results[start:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: c.embedModel,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	return vecs, nil
}

// Generate answers a query with the default assistant instructions.
func (c *Client) Generate(ctx context.Context, query, docContext string) (string, error) {
	return c.GenerateWithSystem(ctx, query, docContext, defaultSystemPrompt)
}

// GenerateWithSystem answers a query with custom system instructions.
func (c *Client) GenerateWithSystem(ctx context.Context, query, docContext, system string) (string, error) {
	user := fmt.Sprintf("Contexto de documentos:\n%s\n\nPregunta del usuario: %s\n\nResponde basándote en el contexto proporcionado.", docContext, query)

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.7,
			MaxTokens:   1000,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// withRetry runs op up to maxRetries+1 times with exponential backoff,
// honoring context cancellation between attempts.
func (c *Client) withRetry(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if c.maxRetries > 0 {
		return fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
	}
	return lastErr
}
