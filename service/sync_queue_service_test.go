// ABOUTME: Tests for outbound queue enqueueing and drain semantics
// ABOUTME: Covers retry bookkeeping and dropping entries that exhaust their budget

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader-sync/models"
)

func TestEnqueueSkipsEmptyRemoteID(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	svc := NewOutboundQueueService(queueRepo, &fakePusher{}, nil)

	err := svc.Enqueue(context.Background(), models.ActionMarkRead, uuid.New(), "")
	require.NoError(t, err)

	count, _ := queueRepo.Count(context.Background())
	assert.Zero(t, count)
}

func TestDrainPushesAndDeletes(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	pusher := &fakePusher{}
	svc := NewOutboundQueueService(queueRepo, pusher, nil)

	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "r1"))
	require.NoError(t, svc.Enqueue(ctx, models.ActionStar, uuid.New(), "r2"))

	pushed, err := svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed)
	assert.Equal(t, 2, pusher.callCount())

	count, _ := queueRepo.Count(ctx)
	assert.Zero(t, count)
}

func TestDrainKeepsFailedEntryForRetry(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	pusher := &fakePusher{
		pushFn: func(remoteItemID string, action models.SyncActionType) error {
			return errors.New("remote unavailable")
		},
	}
	svc := NewOutboundQueueService(queueRepo, pusher, nil)

	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "r1"))

	pushed, err := svc.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, pushed)

	entries, _ := queueRepo.ListPending(ctx, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
}

func TestDrainDropsEntryAfterExhaustingRetries(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	pusher := &fakePusher{
		pushFn: func(remoteItemID string, action models.SyncActionType) error {
			return errors.New("remote unavailable")
		},
	}
	svc := NewOutboundQueueService(queueRepo, pusher, nil)

	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "r1"))

	for i := 0; i < models.DefaultMaxRetries; i++ {
		_, err := svc.Drain(ctx)
		require.NoError(t, err)
	}

	// The entry is gone, not stuck in an endless retry loop.
	count, _ := queueRepo.Count(ctx)
	assert.Zero(t, count)
}

func TestNotifyOnlineDrainsOnceAndEmptiesQueue(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	firstPush := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	pusher := &fakePusher{
		pushFn: func(remoteItemID string, action models.SyncActionType) error {
			once.Do(func() { close(firstPush) })
			<-release
			return nil
		},
	}
	svc := NewOutboundQueueService(queueRepo, pusher, nil)

	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "r1"))
	require.NoError(t, svc.Enqueue(ctx, models.ActionStar, uuid.New(), "r2"))

	svc.NotifyOnline()
	<-firstPush

	// Signals arriving while the drain is running are absorbed by it
	// instead of starting concurrent drains over the same entries.
	svc.NotifyOnline()
	svc.NotifyOnline()
	close(release)

	assert.Eventually(t, func() bool {
		count, _ := queueRepo.Count(ctx)
		return count == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, pusher.callCount())
}

func TestDrainContinuesPastFailingEntries(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	pusher := &fakePusher{
		pushFn: func(remoteItemID string, action models.SyncActionType) error {
			if remoteItemID == "bad" {
				return errors.New("rejected")
			}
			return nil
		},
	}
	svc := NewOutboundQueueService(queueRepo, pusher, nil)

	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "bad"))
	require.NoError(t, svc.Enqueue(ctx, models.ActionMarkRead, uuid.New(), "good"))

	pushed, err := svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)

	entries, _ := queueRepo.ListPending(ctx, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].RemoteItemID)
}
