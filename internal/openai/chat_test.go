package openai

import (
	"context"
	"errors"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lexis/internal/domain"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ChatStream), args.Error(1)
}

type fakeChatStream struct {
	deltas []string
	err    error
	closed int
}

func (f *fakeChatStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if len(f.deltas) == 0 {
		if f.err != nil {
			return openai.ChatCompletionStreamResponse{}, f.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	d := f.deltas[0]
	f.deltas = f.deltas[1:]
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: d}}},
	}, nil
}

func (f *fakeChatStream) Close() error {
	f.closed++
	return nil
}

func collect(t *testing.T, s domain.TokenStream) (string, error) {
	t.Helper()
	var out string
	for {
		tok, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out += tok
	}
}

func TestGenerator_Stream(t *testing.T) {
	api := new(MockChatAPI)
	stream := &fakeChatStream{deltas: []string{"The ", "", "penalty ", "is 5% [1]."}}
	api.On("OpenStream", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Stream && req.Model == DefaultChatModel && len(req.Messages) == 3 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[1].Role == openai.ChatMessageRoleAssistant &&
			req.Messages[2].Content == "What is the penalty?"
	})).Return(stream, nil)

	gen := newGenerator(api, ChatConfig{Temperature: DefaultTemperature})
	ts, err := gen.Stream(context.Background(), domain.Prompt{
		System: "answer from context",
		Messages: []domain.PromptMessage{
			{Role: domain.RoleAssistant, Content: "Hello"},
			{Role: domain.RoleUser, Content: "What is the penalty?"},
		},
	})
	require.NoError(t, err)

	text, err := collect(t, ts)
	require.NoError(t, err)
	assert.Equal(t, "The penalty is 5% [1].", text)

	require.NoError(t, ts.Close())
	require.NoError(t, ts.Close())
	assert.Equal(t, 1, stream.closed)
	api.AssertExpectations(t)
}

func TestGenerator_StreamOpenFails(t *testing.T) {
	api := new(MockChatAPI)
	api.On("OpenStream", mock.Anything, mock.Anything).Return(nil, errors.New("401 unauthorized"))

	gen := newGenerator(api, ChatConfig{})
	ts, err := gen.Stream(context.Background(), domain.Prompt{System: "s"})

	assert.Nil(t, ts)
	assert.True(t, errors.Is(err, domain.ErrGenerationUnavailable))
}

func TestGenerator_StreamInterrupted(t *testing.T) {
	api := new(MockChatAPI)
	stream := &fakeChatStream{deltas: []string{"partial "}, err: errors.New("connection reset")}
	api.On("OpenStream", mock.Anything, mock.Anything).Return(stream, nil)

	gen := newGenerator(api, ChatConfig{})
	ts, err := gen.Stream(context.Background(), domain.Prompt{System: "s"})
	require.NoError(t, err)

	text, err := collect(t, ts)
	assert.Equal(t, "partial ", text)
	assert.True(t, errors.Is(err, domain.ErrGenerationInterrupted))
}
