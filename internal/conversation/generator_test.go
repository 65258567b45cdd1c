package conversation_test

import (
	"testing"

	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "message only", body: `{"message":"안녕하세요"}`, wantErr: false},
		{
			name: "message with choices and scenario",
			body: `{"message":"초안입니다","choices":[{"id":"a","text":"좋아요"},{"id":"b","text":"수정"},` +
				`{"id":"c","text":"다시"}],"scenario_text":"FADE IN"}`,
			wantErr: false,
		},
		{name: "empty body", body: "", wantErr: true},
		{name: "whitespace body", body: "  \n", wantErr: true},
		{name: "not json", body: "Sure! Here is your reply:", wantErr: true},
		{name: "missing message", body: `{"choices":[]}`, wantErr: true},
		{name: "blank message", body: `{"message":"   "}`, wantErr: true},
		{name: "error reported", body: `{"message":"x","error":"rate limited"}`, wantErr: true},
		{name: "two choices", body: `{"message":"x","choices":[{"text":"a"},{"text":"b"}]}`, wantErr: true},
		{name: "empty choice text", body: `{"message":"x","choices":[{"text":"a"},{"text":""},{"text":"c"}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reply, err := conversation.DecodeReply([]byte(tt.body))
			if !tt.wantErr {
				require.NoError(t, err)
				require.NotEmpty(t, reply.Message)
				return
			}
			require.ErrorIs(t, err, conversation.ErrDecode)
			var decodeErr *conversation.DecodeError
			require.True(t, errors.As(err, &decodeErr))
			require.NotEmpty(t, decodeErr.Reason)
		})
	}
}

func TestDecodeReply_ScenarioText(t *testing.T) {
	reply, err := conversation.DecodeReply([]byte(`{"message":"완성!","scenario_text":"S#1. 옥상"}`))
	require.NoError(t, err)
	require.Equal(t, "S#1. 옥상", reply.ScenarioText)
	require.Empty(t, reply.Choices)
}
