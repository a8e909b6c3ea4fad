package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge-ai-api/internal/domain/entity"
)

func entryFor(provider string, n int) *entity.UsageLogEntry {
	return &entity.UsageLogEntry{Provider: provider, Model: "m", TokensTotal: n}
}

func TestFlushWritesBatch(t *testing.T) {
	repo := &fakeUsageRepo{}
	tracker := NewUsageTracker(repo, time.Hour, 100)

	tracker.Track(entryFor("openai", 1))
	tracker.Track(entryFor("openai", 2))
	require.NoError(t, tracker.Flush(context.Background()))

	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 2)
	assert.Zero(t, tracker.BufferedCount())
}

func TestFlushFailureRequeuesBatchAhead(t *testing.T) {
	repo := &fakeUsageRepo{failN: 1}
	tracker := NewUsageTracker(repo, time.Hour, 100)

	tracker.Track(entryFor("openai", 1))
	tracker.Track(entryFor("openai", 2))

	// 第一次刷写失败：批次必须放回缓冲
	require.Error(t, tracker.Flush(context.Background()))
	assert.Equal(t, 2, tracker.BufferedCount())

	// 失败批次排在失败后新增条目之前
	tracker.Track(entryFor("openai", 3))
	require.NoError(t, tracker.Flush(context.Background()))
	require.Len(t, repo.batches, 1)
	require.Len(t, repo.batches[0], 3)
	assert.Equal(t, 1, repo.batches[0][0].TokensTotal)
	assert.Equal(t, 2, repo.batches[0][1].TokensTotal)
	assert.Equal(t, 3, repo.batches[0][2].TokensTotal)
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	repo := &fakeUsageRepo{}
	tracker := NewUsageTracker(repo, time.Hour, 100)
	require.NoError(t, tracker.Flush(context.Background()))
	assert.Empty(t, repo.batches)
}
