package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Prompt - три блока инструкций для одной генерации
type Prompt struct {
	System    string // персона и бизнес-правила
	Developer string // формат и поведение
	Task      string // данные конкретного клиента
}

// Params - параметры генерации
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Message - сообщение в формате chat completions
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   map[string]int         `json:"usage"`
}

// Options - настройки клиента
type Options struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client - клиент OpenAI-совместимого API chat completions
type Client struct {
	apiURL string
	apiKey string
	model  string
	http   *http.Client
	log    zerolog.Logger
}

// NewClient создаёт клиента. Таймаут по умолчанию 30s.
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		apiKey: opts.APIKey,
		model:  opts.Model,
		http:   &http.Client{Timeout: opts.Timeout},
		log:    log,
	}
}

// Complete отправляет три блока и возвращает текст первого варианта ответа.
// Повторов нет: ошибка возвращается как *Error.
func (c *Client) Complete(ctx context.Context, p Prompt, params Params) (string, error) {
	messages := []Message{{Role: "system", Content: p.System}}
	if p.Developer != "" {
		messages = append(messages, Message{Role: "system", Content: p.Developer})
	}
	messages = append(messages, Message{Role: "user", Content: p.Task})

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", statusError(resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", &Error{Kind: KindUpstream, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.log.Debug().
		Str("model", completion.Model).
		Dur("latency", time.Since(start)).
		Interface("usage", completion.Usage).
		Msg("completion received")

	if len(completion.Choices) == 0 {
		return "", &Error{Kind: KindEmpty, Err: errors.New("no choices returned")}
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindEmpty, Err: errors.New("blank completion")}
	}
	return text, nil
}

// Ping проверяет ключ и доступность API запросом списка моделей
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
