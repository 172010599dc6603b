package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/utils"
)

// HTTPProvider is the process-wide default Provider: a raw net/http client
// POSTing OpenAI-style chat-completion requests to an injected base URL,
// exactly the pattern the teacher's MemoryConsolidationServiceImpl.
// GenerateSummary uses against its router base URL. The concrete vendor
// behind BaseURL is out of scope (spec §1); this is the adapter shape.
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
	maxRetries int
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, maxRetries int) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *HTTPProvider) callChat(ctx context.Context, model string, messages []chatMessage) (string, Usage, error) {
	var lastErr error
	lastRetryable := false
	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		content, usage, retryable, err := p.doCallChat(ctx, model, messages)
		if err == nil {
			return content, usage, nil
		}
		lastErr = err
		lastRetryable = retryable
		if !retryable || attempt == p.maxRetries {
			break
		}
		idx := attempt
		if idx >= len(backoffs) {
			idx = len(backoffs) - 1
		}
		select {
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		case <-time.After(backoffs[idx]):
		}
	}
	return "", Usage{}, &models.ClassifiedError{Stage: "llm_call", Message: lastErr.Error(), Kind: models.ErrorKindLLM, IsRetryable: lastRetryable}
}

func (p *HTTPProvider) doCallChat(ctx context.Context, model string, messages []chatMessage) (string, Usage, bool, error) {
	body, err := json.Marshal(chatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", Usage{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		b, _ := io.ReadAll(resp.Body)
		return "", Usage{}, true, fmt.Errorf("llm overloaded (status %d): %s", resp.StatusCode, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", Usage{}, false, fmt.Errorf("llm call failed (status %d): %s", resp.StatusCode, string(b))
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", Usage{}, false, fmt.Errorf("decode llm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", Usage{}, false, fmt.Errorf("llm response had no choices")
	}

	return decoded.Choices[0].Message.Content, Usage{
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
		TotalTokens:      decoded.Usage.TotalTokens,
	}, false, nil
}

func (p *HTTPProvider) ExtractStructuredData(ctx context.Context, userText, systemPrompt string, jsonContext map[string]interface{}, useCache bool) (*ExtractResult, error) {
	messages := []chatMessage{}
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	content := userText
	if jsonContext != nil {
		if b, err := json.Marshal(jsonContext); err == nil {
			content = userText + "\n\nCONTEXT:\n" + string(b)
		}
	}
	messages = append(messages, chatMessage{Role: "user", Content: content})

	raw, usage, err := p.callChat(ctx, "", messages)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	_ = utils.DecodeJSONLenient(raw, &data)

	return &ExtractResult{RawText: raw, Data: data, Usage: usage}, nil
}

func (p *HTTPProvider) StreamChat(ctx context.Context, messages []ChatMessage, systemPrompt string) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 1)
	chatMsgs := make([]chatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMsgs = append(chatMsgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		chatMsgs = append(chatMsgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	go func() {
		defer close(out)
		content, _, err := p.callChat(ctx, "", chatMsgs)
		if err != nil {
			out <- StreamEvent{Type: "data", Data: map[string]interface{}{"error": err.Error()}}
			return
		}
		for _, word := range strings.Fields(content) {
			select {
			case <-ctx.Done():
				return
			case out <- StreamEvent{Type: "text", Text: word + " "}:
			}
		}
		out <- StreamEvent{Type: "done"}
	}()

	return out, nil
}

func (p *HTTPProvider) SummarizeChunksBatch(ctx context.Context, pages []PageText, model string) ([]string, error) {
	summaries := make([]string, len(pages))
	for i, page := range pages {
		messages := []chatMessage{
			{Role: "system", Content: "Summarize the following document page narrative concisely, preserving figures and entities."},
			{Role: "user", Content: fmt.Sprintf("[Page %d]\n%s", page.Page, page.Text)},
		}
		content, _, err := p.callChat(ctx, model, messages)
		if err != nil {
			return nil, fmt.Errorf("summarize page %d: %w", page.Page, err)
		}
		summaries[i] = content
	}
	return summaries, nil
}
