package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/utils"
)

// BedrockClient is an implementation of the ThreatDetector interface
// using Amazon Bedrock.
type BedrockClient struct {
	client        *bedrockruntime.Client
	modelID       string
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

// NewBedrockClient creates a new Bedrock threat detector.
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
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
	}
}

func (c *BedrockClient) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.")
}

func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}

// DetectThreats analyzes an email and returns the model's independent
// threat assessment.
func (c *BedrockClient) DetectThreats(ctx context.Context, email *core.InboundEmail) (*core.ThreatDetection, error) {
	to := ""
	if len(email.Recipients) > 0 {
		to = email.Recipients[0]
		if len(email.Recipients) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.Recipients)-1)
		}
	}

	processedBody := c.textProcessor.ProcessText(email.BodyText, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, email.Sender, to, email.Subject, processedBody)

	var payload []byte
	var err error

	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	} else if c.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var responseText string
	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(resp.Body, &claudeResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		responseText = claudeResp.Completion
	} else if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return nil, fmt.Errorf("empty response from Titan model")
		}
		responseText = titanResp.Results[0].OutputText
	} else {
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(resp.Body, &genericResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		switch {
		case genericResp.Output != "":
			responseText = genericResp.Output
		case genericResp.Text != "":
			responseText = genericResp.Text
		case genericResp.Response != "":
			responseText = genericResp.Response
		default:
			responseText = string(resp.Body)
		}
	}

	analysis, err := parseThreatResponse(responseText)
	if err != nil {
		return nil, err
	}

	return &core.ThreatDetection{
		ThreatScore: analysis.ThreatScore,
		ThreatType:  analysis.ThreatType,
		Confidence:  analysis.Confidence,
		Indicators:  analysis.Indicators,
		ModelUsed:   c.modelID,
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
