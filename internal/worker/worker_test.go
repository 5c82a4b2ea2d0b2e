package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

func TestShouldRequeueJob(t *testing.T) {
	w := &Worker{}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "already claimed - drop",
			err:  fmt.Errorf("job already claimed: %w", domain.ErrJobAlreadyClaimed),
			want: false,
		},
		{
			name: "max retries exceeded - drop",
			err:  fmt.Errorf("%w: boom", domain.ErrMaxRetriesExceeded),
			want: false,
		},
		{
			name: "invalid payload - drop",
			err:  fmt.Errorf("%w: bad json", domain.ErrInvalidPayload),
			want: false,
		},
		{
			name: "retryable - requeue",
			err:  domain.NewRetryableError(errors.New("db connection reset")),
			want: true,
		},
		{
			name: "unknown error - drop",
			err:  errors.New("something else"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeueJob(tt.err))
		})
	}
}
