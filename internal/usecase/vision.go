package usecase

import (
	"context"
	"time"

	"github.com/openmake/ensemble/internal/domain"
)

const describeImagePrompt = "이 이미지에 무엇이 있는지 설명하세요. 텍스트, 차트, 코드가 보이면 그 내용도 요약하세요. 3~4문장 이내로 답하세요."

// VisionDescriber produces image descriptions with a vision-capable model.
// It implements ImageDescriber for discussion pre-analysis.
type VisionDescriber struct {
	llm   domain.LLMProvider
	model string
}

// NewVisionDescriber creates a describer on the given model.
func NewVisionDescriber(llm domain.LLMProvider, model string) *VisionDescriber {
	if model == "" {
		model = modelSonnet
	}
	return &VisionDescriber{llm: llm, model: model}
}

// Describe implements ImageDescriber.
func (v *VisionDescriber) Describe(ctx context.Context, img domain.ImageAttachment) (string, error) {
	resp, err := v.llm.Chat(ctx, domain.ChatRequest{
		Model:     v.model,
		MaxTokens: 512,
		Messages: []domain.Message{{
			Role:      domain.RoleUser,
			Content:   describeImagePrompt,
			Images:    []domain.ImageAttachment{img},
			Timestamp: time.Now(),
		}},
	})
	if err != nil {
		return "", domain.WrapOp("VisionDescriber.Describe", err)
	}
	return resp.Message.Content, nil
}
