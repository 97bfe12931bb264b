package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

func TestRetry(t *testing.T) {
	logger := logging.NewNoopLogger()

	tests := []struct {
		name           string
		attemptsToFail int
		config         *Config
		expectedResult string
		expectError    bool
	}{
		{
			name:           "success on first try",
			attemptsToFail: 0,
			config:         DefaultConfig(),
			expectedResult: "success",
		},
		{
			name:           "success after retries",
			attemptsToFail: 2,
			config: &Config{
				MaxRetries:    3,
				InitialDelay:  time.Millisecond,
				MaxDelay:      10 * time.Millisecond,
				BackoffFactor: 2.0,
			},
			expectedResult: "success",
		},
		{
			name:           "exhausts all attempts",
			attemptsToFail: 10,
			config: &Config{
				MaxRetries:    3,
				InitialDelay:  time.Millisecond,
				MaxDelay:      10 * time.Millisecond,
				BackoffFactor: 2.0,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			operation := func() (string, error) {
				attempts++
				if attempts <= tt.attemptsToFail {
					return "", errors.New("transient failure")
				}
				return "success", nil
			}

			result, err := Retry(context.Background(), operation, tt.config, logger)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedResult, result)
		})
	}
}

func TestRetryShouldRetryPredicate(t *testing.T) {
	logger := logging.NewNoopLogger()
	permanent := errors.New("permanent failure")

	config := &Config{
		MaxRetries:    5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
		ShouldRetry: func(err error, attempt int) bool {
			return !errors.Is(err, permanent)
		},
	}

	attempts := 0
	_, err := Retry(context.Background(), func() (int, error) {
		attempts++
		return 0, permanent
	}, config, logger)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryContextCancellation(t *testing.T) {
	logger := logging.NewNoopLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, func() (int, error) {
		return 0, errors.New("never succeeds")
	}, DefaultConfig(), logger)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.BackoffFactor = 0.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.JitterFactor = 1.5
	assert.Error(t, cfg.Validate())
}

func TestCalculateNextDelay(t *testing.T) {
	next := CalculateNextDelay(time.Second, 2.0, 30*time.Second)
	assert.Equal(t, 2*time.Second, next)

	capped := CalculateNextDelay(20*time.Second, 2.0, 30*time.Second)
	assert.Equal(t, 30*time.Second, capped)
}
