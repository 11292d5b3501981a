package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/llm"
)

// visionPrompt asks the model for a line-keyed structured reply so the
// result parses without JSON-mode support on every provider.
const visionPrompt = `Analyze the attached image and reply with exactly these lines:
CATEGORY: one of chemical, chart, diagram, visual
DESCRIPTION: one sentence describing the image
FORMULA: the chemical formula or structure name if CATEGORY is chemical, otherwise none
NAME: the common name of the depicted compound or subject, or none`

// visionMaxTokens bounds the structured pre-analysis reply.
const visionMaxTokens = 400

// ChainVision runs image pre-analysis through the provider chain and parses
// the structured reply into a VisionResult.
type ChainVision struct {
	llm LLMCaller
}

// NewChainVision wraps a provider chain as a VisionAnalyzer.
func NewChainVision(caller LLMCaller) *ChainVision {
	return &ChainVision{llm: caller}
}

// AnalyzeImage sends one image with the structured prompt. An unparseable
// reply degrades to the visual category with the raw text as description.
func (v *ChainVision) AnalyzeImage(ctx context.Context, data []byte, fileName string) (*VisionResult, error) {
	resp, err := v.llm.CallWithRetry(ctx, llm.Request{
		Prompt:    visionPrompt,
		Images:    [][]byte{data},
		MaxTokens: visionMaxTokens,
	}, llm.CallOptions{})
	if err != nil {
		return nil, fmt.Errorf("vision analysis of %s: %w", fileName, err)
	}
	return parseVisionReply(resp.Text), nil
}

func parseVisionReply(text string) *VisionResult {
	result := &VisionResult{Category: "visual"}
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.EqualFold(value, "none") {
			value = ""
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "CATEGORY":
			switch strings.ToLower(value) {
			case "chemical", "chart", "diagram", "visual":
				result.Category = strings.ToLower(value)
			}
		case "DESCRIPTION":
			result.Description = value
		case "FORMULA":
			result.Formula = value
		case "NAME":
			result.Name = value
		}
	}
	if result.Description == "" {
		result.Description = strings.TrimSpace(text)
	}
	return result
}
