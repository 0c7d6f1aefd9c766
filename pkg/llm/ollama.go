package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/hh"
)

// OllamaProvider talks to a local Ollama server through its
// OpenAI-compatible chat completions endpoint.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewOllamaProvider builds a provider. The generous timeout tolerates CPU
// inference.
func NewOllamaProvider(baseURL, model string, log *zap.Logger) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		log: log.With(zap.String("component", "ollama")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// generate runs one chat completion and returns the trimmed content.
func (p *OllamaProvider) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a professional copywriter. /no_think"},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   2000,
		Temperature: 0.2,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("empty response from llm")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty content in llm response")
	}

	p.log.Debug("llm response received", zap.Int("length", len(content)))
	return content, nil
}

func (p *OllamaProvider) GenerateCoverLetter(ctx context.Context, vacancy *hh.Vacancy, profile *CandidateProfile) (string, error) {
	return p.generate(ctx, coverLetterPrompt(vacancy, profile))
}

func (p *OllamaProvider) AnswerScreeningQuestions(ctx context.Context, questions []hh.Question, vacancy *hh.Vacancy, profile *CandidateProfile) (map[string]string, error) {
	if len(questions) == 0 {
		return nil, nil
	}

	answers := make(map[string]string, len(questions))
	for i, q := range questions {
		text := q.Text
		if text == "" {
			continue
		}
		answer, err := p.generate(ctx, screeningAnswerPrompt(text, vacancy, profile))
		if err != nil {
			return nil, fmt.Errorf("answer question %d: %w", i, err)
		}
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		answers[id] = answer
	}
	return answers, nil
}

func (p *OllamaProvider) GenerateReply(ctx context.Context, employerMessage, vacancyTitle string, profile *CandidateProfile) (string, error) {
	return p.generate(ctx, replyPrompt(employerMessage, vacancyTitle, profile))
}
