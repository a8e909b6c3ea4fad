package provider

import (
	"context"
	"sync"
	"time"

	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
	"contentforge-ai-api/pkg/logger"
	"contentforge-ai-api/pkg/metrics"
)

const (
	defaultFlushInterval = 30 * time.Second
	defaultFlushSize     = 50
)

// UsageTracker 用量流水的内存缓冲与批量落库。
// 追踪失败只记日志，绝不阻塞或失败生成主流程。
type UsageTracker struct {
	repo          repository.UsageLogRepository
	flushInterval time.Duration
	flushSize     int

	mu  sync.Mutex
	buf []*entity.UsageLogEntry

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewUsageTracker 创建用量追踪器
func NewUsageTracker(repo repository.UsageLogRepository, flushInterval time.Duration, flushSize int) *UsageTracker {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if flushSize <= 0 {
		flushSize = defaultFlushSize
	}
	return &UsageTracker{
		repo:          repo,
		flushInterval: flushInterval,
		flushSize:     flushSize,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Track 追加一条流水。缓冲达到阈值时触发异步刷写。
func (t *UsageTracker) Track(entry *entity.UsageLogEntry) {
	if t == nil || entry == nil {
		return
	}
	t.mu.Lock()
	t.buf = append(t.buf, entry)
	size := len(t.buf)
	t.mu.Unlock()

	metrics.UsageBufferSize.Set(float64(size))
	if size >= t.flushSize {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// Start 启动后台刷写循环
func (t *UsageTracker) Start(ctx context.Context) {
	go t.loop(ctx)
}

// Stop 停止循环并刷写残余缓冲
func (t *UsageTracker) Stop(ctx context.Context) {
	close(t.stop)
	<-t.done
	if err := t.Flush(ctx); err != nil {
		logger.Warn(ctx, "final usage flush failed", "error", err.Error())
	}
}

func (t *UsageTracker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		case <-t.kick:
		}
		if err := t.Flush(ctx); err != nil {
			logger.Warn(ctx, "usage flush failed, batch re-queued", "error", err.Error())
		}
	}
}

// Flush 批量落库。失败的批次整体放回缓冲头部，
// 排在新条目之前，下一轮优先重试。
func (t *UsageTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if len(t.buf) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.buf
	t.buf = nil
	t.mu.Unlock()

	if err := t.repo.BatchLogUsage(ctx, batch); err != nil {
		t.mu.Lock()
		t.buf = append(batch, t.buf...)
		size := len(t.buf)
		t.mu.Unlock()
		metrics.UsageBufferSize.Set(float64(size))
		metrics.UsageFlushTotal.WithLabelValues("error").Inc()
		return err
	}

	t.mu.Lock()
	size := len(t.buf)
	t.mu.Unlock()
	metrics.UsageBufferSize.Set(float64(size))
	metrics.UsageFlushTotal.WithLabelValues("ok").Inc()
	return nil
}

// BufferedCount 当前缓冲条数
func (t *UsageTracker) BufferedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}
