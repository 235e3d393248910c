package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/resilience"
)

func TestIsWriteContention(t *testing.T) {
	insufficient := &domain.LedgerError{Err: domain.ErrInsufficientStock, Op: domain.MovementReserve}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"write conflict", mongo.CommandError{Code: 112, Name: "WriteConflict"}, true},
		{"transient label", mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}, true},
		{"racing upsert", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}, true},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), false},
		{"canceled", context.Canceled, false},
		{"domain rejection", insufficient, false},
		{"unauthorized", mongo.CommandError{Code: 13, Name: "Unauthorized"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isWriteContention(tt.err))
		})
	}
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	insufficient := &domain.LedgerError{Err: domain.ErrInsufficientStock, Op: domain.MovementReserve}
	assert.Same(t, insufficient, translateError(insufficient))

	err := translateError(fmt.Errorf("max retries (3) exceeded: %w", mongo.CommandError{Code: 112}))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	err = translateError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	boom := stderrors.New("boom")
	assert.Same(t, boom, translateError(boom))
}

func TestTxRetryConfigRetriesUntilDeadline(t *testing.T) {
	config := txRetryConfig()
	assert.Equal(t, maxTxAttempts, config.MaxAttempts)
	assert.True(t, config.RetryableErrors(mongo.CommandError{Code: 112}))
	assert.False(t, config.RetryableErrors(context.DeadlineExceeded))
}

func TestWithTxDeadline(t *testing.T) {
	ctx, cancel := withTxDeadline(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultTxTimeout), deadline, time.Second)

	parent, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()
	want, _ := parent.Deadline()
	ctx, cancel = withTxDeadline(parent)
	defer cancel()
	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestTxRetryStopsAtMaxAttempts(t *testing.T) {
	config := txRetryConfig()
	config.InitialDelay, config.MaxDelay = 0, 0

	attempts := 0
	err := resilience.Retry(context.Background(), config, func() error {
		attempts++
		return mongo.CommandError{Code: 112}
	})
	assert.Equal(t, maxTxAttempts, attempts)
	assert.ErrorIs(t, translateError(err), domain.ErrConcurrencyConflict)
}
