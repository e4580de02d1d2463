package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrVisionUnavailable is returned when no API key is configured.
var ErrVisionUnavailable = errors.New("vision ocr is not configured")

const transcribePrompt = `Transcribe all text visible on this document page exactly as printed, preserving line breaks and reading order. Respond with the transcription only, without commentary or formatting.`

// VisionEngine recognizes page text with an OpenAI-compatible vision model.
type VisionEngine struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewVisionEngine(config Config) *VisionEngine {
	if config.APIKey == "" {
		return &VisionEngine{}
	}
	cfg := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		cfg.BaseURL = strings.TrimRight(config.Endpoint, "/")
	}
	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &VisionEngine{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: 2 * time.Minute,
	}
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if e.client == nil {
		return "", ErrVisionUnavailable
	}
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: transcribePrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURI(data),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   4096,
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request vision transcription: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
