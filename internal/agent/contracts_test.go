package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

func TestWorkflowInputDefaults(t *testing.T) {
	in := WorkflowInput{EssayQuestion: "Why?", EssayContent: "Because."}
	require.NoError(t, in.Normalize(""))
	assert.Equal(t, DefaultLanguage, in.Language)
	assert.Equal(t, constants.ResponseModeBlocking, in.ResponseMode)
	assert.Equal(t, DefaultUser, in.UserID)

	in = WorkflowInput{EssayQuestion: "Why?", EssayContent: "Because."}
	require.NoError(t, in.Normalize("svc"))
	assert.Equal(t, "svc", in.UserID)
}

func TestWorkflowInputValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    WorkflowInput
		field string
	}{
		{"missing question", WorkflowInput{EssayContent: "x"}, "essay_question"},
		{"question too long", WorkflowInput{EssayQuestion: strings.Repeat("q", 2001), EssayContent: "x"}, "essay_question"},
		{"essay too long", WorkflowInput{EssayQuestion: "q", EssayContent: strings.Repeat("e", 20001)}, "essay_content"},
		{"language too long", WorkflowInput{EssayQuestion: "q", EssayContent: "x", Language: strings.Repeat("l", 49)}, "language"},
		{"bad mode", WorkflowInput{EssayQuestion: "q", EssayContent: "x", ResponseMode: "batch"}, "response_mode"},
		{"user too long", WorkflowInput{EssayQuestion: "q", EssayContent: "x", UserID: strings.Repeat("u", 129)}, "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Normalize("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInputInvalid))
			var ae *common.AppError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.field, ae.Details["field"])
		})
	}
}

func TestWorkflowInputAcceptsLimits(t *testing.T) {
	in := WorkflowInput{
		EssayQuestion: strings.Repeat("q", 2000),
		EssayContent:  strings.Repeat("e", 20000),
		Language:      strings.Repeat("l", 48),
		ResponseMode:  constants.ResponseModeStreaming,
		UserID:        strings.Repeat("u", 128),
	}
	assert.NoError(t, in.Normalize(""))
}
