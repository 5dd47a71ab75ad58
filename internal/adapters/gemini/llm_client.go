package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/utils"
)

// GeminiClient is an implementation of the ThreatDetector interface using
// Google Gemini.
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
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

// NewGeminiClient creates a new Gemini threat detector.
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are an email security analyst. Assess the following email for phishing, malware delivery, spam and business email compromise.
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

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// DetectThreats analyzes an email and returns the model's independent
// threat assessment.
func (c *GeminiClient) DetectThreats(ctx context.Context, email *core.InboundEmail) (*core.ThreatDetection, error) {
	to := ""
	if len(email.Recipients) > 0 {
		to = email.Recipients[0]
		if len(email.Recipients) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.Recipients)-1)
		}
	}

	processedBody := c.textProcessor.ProcessText(email.BodyText, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, email.Sender, to, email.Subject, processedBody)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	analysis, err := parseThreatResponse(responseText)
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

// parseThreatResponse parses the LLM's JSON, tolerating prose around the
// object.
func parseThreatResponse(text string) (*ThreatAnalysisResponse, error) {
	var analysis ThreatAnalysisResponse
	if err := json.Unmarshal([]byte(text), &analysis); err == nil {
		return &analysis, nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("failed to extract JSON from LLM response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}
	return &analysis, nil
}
