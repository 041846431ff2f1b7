package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chainclock/chainclock/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), zaptest.NewLogger(t), Options{
		Addr:  "127.0.0.1:1",
		Retry: &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Contains(t, err.Error(), "redis_connection failed after 2 attempts")
}
