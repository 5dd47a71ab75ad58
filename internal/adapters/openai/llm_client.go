package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/utils"
)

// OpenAIClient is an implementation of the ThreatDetector interface
// using OpenAI chat completions.
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// ThreatAnalysisResponse represents the structured response from the LLM.
type ThreatAnalysisResponse struct {
	ThreatScore float64  `json:"threat_score"`
	ThreatType  string   `json:"threat_type"`
	Confidence  float64  `json:"confidence"`
	Indicators  []string `json:"indicators"`
}

// NewOpenAIClient creates a new OpenAI threat detector.
func NewOpenAIClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	client := openai.NewClient(apiKey)

	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat:  threatPromptFormat,
	}
}

const threatPromptFormat = `You are an email security analyst. Assess the following email for phishing, malware delivery, spam and business email compromise.
Respond with a JSON object containing:
- threat_score: number between 0 and 1 (higher means more dangerous)
- threat_type: string (one of "phishing", "malware", "spam", "bec", "scam", "none")
- confidence: number between 0 and 1 (how confident you are in your assessment)
- indicators: array of short strings naming what you found

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// DetectThreats analyzes an email and returns the model's independent
// threat assessment.
func (c *OpenAIClient) DetectThreats(ctx context.Context, email *core.InboundEmail) (*core.ThreatDetection, error) {
	prompt := fmt.Sprintf(c.promptFormat,
		email.Sender,
		recipientSummary(email.Recipients),
		email.Subject,
		c.textProcessor.ProcessText(email.BodyText, c.maxBodySize))

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email security analyst. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	responseFormat := openai.ChatCompletionResponseFormat{Type: "json_object"}
	req.ResponseFormat = &responseFormat

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	analysis, err := parseThreatResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &core.ThreatDetection{
		ThreatScore: analysis.ThreatScore,
		ThreatType:  analysis.ThreatType,
		Confidence:  analysis.Confidence,
		Indicators:  analysis.Indicators,
		ModelUsed:   c.modelName,
		DetectedAt:  time.Now(),
	}, nil
}

// recipientSummary keeps the prompt small for wide distribution lists.
func recipientSummary(recipients []string) string {
	if len(recipients) == 0 {
		return ""
	}
	out := recipients[0]
	if len(recipients) > 1 {
		out += fmt.Sprintf(" and %d others", len(recipients)-1)
	}
	return out
}

// parseThreatResponse parses the LLM's JSON, tolerating prose around the
// object.
func parseThreatResponse(text string) (*ThreatAnalysisResponse, error) {
	var analysis ThreatAnalysisResponse
	if err := json.Unmarshal([]byte(text), &analysis); err == nil {
		return &analysis, nil
	}

	start := -1
	end := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start = i
			break
		}
	}
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '}' {
			end = i + 1
			break
		}
	}
	if start < 0 || end <= start {
		return nil, fmt.Errorf("failed to extract JSON from LLM response")
	}
	if err := json.Unmarshal([]byte(text[start:end]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}
	return &analysis, nil
}
