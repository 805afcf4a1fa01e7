package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      int
		retryable bool
	}{
		{"nil", nil, OK, false},
		{"not found", resume.NotFoundError(), ResourceMissing, false},
		{"foreign resume", fmt.Errorf("load: %w", resume.ErrNotAuthorized), ResourceMissing, false},
		{"missing prompt", &resume.Error{Kind: resume.KindMissingField, Field: "prompt"}, InvalidInput, false},
		{"stale revision", resume.ConflictError(), Conflict, true},
		{"ai disabled", resume.ErrSummarizerUnavailable, AIDisabled, false},
		{"upstream", errors.New("dial tcp: timeout"), UpstreamError, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := FromError(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.retryable, Retryable(code))
		})
	}
}
