package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/logger"
)

// fakeConverse is a scripted Bedrock client.
type fakeConverse struct {
	output *bedrockruntime.ConverseOutput
	err    error
	input  *bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeConverse) ConverseStream(_ context.Context, _ *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, errors.New("not scripted")
}

func textOutput(text string, in, out int32) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(in),
			OutputTokens: aws.Int32(out),
		},
	}
}

func TestChatRoundTrip(t *testing.T) {
	client := &fakeConverse{output: textOutput("응답입니다", 12, 7)}
	p := newBedrockProviderWithClient("default-model", client, logger.Discard())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "당신은 조수입니다"},
			{Role: domain.RoleUser, Content: "안녕"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "응답입니다" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 7 || resp.Usage.TotalTokens != 19 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	// Empty model falls back to the default.
	if got := aws.ToString(client.input.ModelId); got != "default-model" {
		t.Errorf("ModelId = %q", got)
	}
	// System prompt rides the system slot, never the message list.
	if len(client.input.System) != 1 {
		t.Fatalf("System = %d blocks, want 1", len(client.input.System))
	}
	if len(client.input.Messages) != 1 {
		t.Errorf("Messages = %d, want 1 (user only)", len(client.input.Messages))
	}
}

func TestToConverseInputToolConfig(t *testing.T) {
	req := domain.ChatRequest{
		Model: "m",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "검색해줘"},
		},
		Tools: []domain.ToolSchema{
			{Name: "web_search", Description: "검색", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
		MaxTokens:   100,
		Temperature: 0.5,
	}

	input := toConverseInput(req)

	if input.ToolConfig == nil || len(input.ToolConfig.Tools) != 1 {
		t.Fatalf("ToolConfig = %+v", input.ToolConfig)
	}
	spec, ok := input.ToolConfig.Tools[0].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("tool type = %T", input.ToolConfig.Tools[0])
	}
	if aws.ToString(spec.Value.Name) != "web_search" {
		t.Errorf("tool name = %q", aws.ToString(spec.Value.Name))
	}
	if got := aws.ToInt32(input.InferenceConfig.MaxTokens); got != 100 {
		t.Errorf("MaxTokens = %d", got)
	}
	if input.InferenceConfig.Temperature == nil {
		t.Error("Temperature not set")
	}
}

func TestToConverseMessageToolResult(t *testing.T) {
	msg := toConverseMessage(domain.Message{
		Role:      domain.RoleTool,
		Name:      "web_search",
		Content:   "검색 결과",
		ToolCalls: []domain.ToolCall{{ID: "call-7", Name: "web_search"}},
	})

	// Tool results ride in a user-role message per the Converse protocol.
	if msg.Role != types.ConversationRoleUser {
		t.Errorf("Role = %v, want user", msg.Role)
	}
	block, ok := msg.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("block type = %T", msg.Content[0])
	}
	if aws.ToString(block.Value.ToolUseId) != "call-7" {
		t.Errorf("ToolUseId = %q", aws.ToString(block.Value.ToolUseId))
	}
}

func TestToConverseMessageUserImages(t *testing.T) {
	msg := toConverseMessage(domain.Message{
		Role:    domain.RoleUser,
		Content: "이 차트 좀 봐줘",
		Images: []domain.ImageAttachment{
			{Name: "chart.jpg", MimeType: "image/jpeg", Data: []byte{0xFF, 0xD8}},
			{Name: "empty.png", MimeType: "image/png"},
		},
	})

	// Text block plus one image block; attachments without data are skipped.
	if len(msg.Content) != 2 {
		t.Fatalf("Content = %d blocks, want 2", len(msg.Content))
	}
	img, ok := msg.Content[1].(*types.ContentBlockMemberImage)
	if !ok {
		t.Fatalf("block type = %T", msg.Content[1])
	}
	if img.Value.Format != types.ImageFormatJpeg {
		t.Errorf("Format = %v, want jpeg", img.Value.Format)
	}
	src, ok := img.Value.Source.(*types.ImageSourceMemberBytes)
	if !ok {
		t.Fatalf("source type = %T", img.Value.Source)
	}
	if len(src.Value) != 2 {
		t.Errorf("image bytes = %d, want 2", len(src.Value))
	}
}

func TestImageFormat(t *testing.T) {
	tests := []struct {
		mime string
		want types.ImageFormat
	}{
		{"image/jpeg", types.ImageFormatJpeg},
		{"image/gif", types.ImageFormatGif},
		{"image/webp", types.ImageFormatWebp},
		{"image/png", types.ImageFormatPng},
		{"", types.ImageFormatPng},
	}
	for _, tt := range tests {
		if got := imageFormat(tt.mime); got != tt.want {
			t.Errorf("imageFormat(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestFromConverseOutputToolUse(t *testing.T) {
	output := textOutput("", 1, 1)
	output.Output = &types.ConverseOutputMemberMessage{
		Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String("call-1"),
						Name:      aws.String("web_search"),
					},
				},
			},
		},
	}

	resp := fromConverseOutput(output, "m")
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", resp.Message.ToolCalls)
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call-1" || tc.Name != "web_search" {
		t.Errorf("tool call = %+v", tc)
	}
	if len(tc.Arguments) == 0 {
		t.Error("Arguments empty, want at least {}")
	}
}

func TestMapBedrockError(t *testing.T) {
	tests := []struct {
		code string
		msg  string
		want error
	}{
		{"ThrottlingException", "slow down", domain.ErrRateLimit},
		{"TooManyRequestsException", "slow down", domain.ErrRateLimit},
		{"AccessDeniedException", "no access", domain.ErrAuthInvalid},
		{"UnrecognizedClientException", "bad token", domain.ErrAuthInvalid},
		{"ValidationException", "input is too long", domain.ErrContextOverflow},
		{"ServiceUnavailableException", "try later", domain.ErrBackendFailure},
		{"InternalServerException", "oops", domain.ErrBackendFailure},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := mapBedrockError(&smithy.GenericAPIError{Code: tt.code, Message: tt.msg})
			if !errors.Is(err, tt.want) {
				t.Errorf("mapBedrockError = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMapBedrockErrorPassthrough(t *testing.T) {
	if got := mapBedrockError(nil); got != nil {
		t.Errorf("mapBedrockError(nil) = %v", got)
	}

	plain := errors.New("dial tcp: connection refused")
	got := mapBedrockError(plain)
	if !errors.Is(got, plain) {
		t.Errorf("mapBedrockError = %v, want wrap of original", got)
	}
	// ValidationException without a length hint stays unmapped.
	val := mapBedrockError(&smithy.GenericAPIError{Code: "ValidationException", Message: "bad field"})
	if errors.Is(val, domain.ErrContextOverflow) {
		t.Errorf("mapBedrockError = %v, must not map to context overflow", val)
	}
}

func TestChatErrorIsMapped(t *testing.T) {
	client := &fakeConverse{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "x"}}
	p := newBedrockProviderWithClient("m", client, logger.Discard())

	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "안녕"}},
	})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("err = %v, want ErrRateLimit", err)
	}
}
