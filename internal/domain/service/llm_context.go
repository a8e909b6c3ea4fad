package service

import (
	"context"
	"strings"

	"contentforge-ai-api/pkg/logger"
)

// WithTaskProvider 将任务类型与后端名称写入 Context，
// 供日志层在后续调用链中自动附带
func WithTaskProvider(ctx context.Context, task, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	if t := strings.TrimSpace(task); t != "" {
		ctx = context.WithValue(ctx, logger.TaskKey, t)
	}
	if p := strings.TrimSpace(provider); p != "" {
		ctx = context.WithValue(ctx, logger.ProviderKey, p)
	}
	return ctx
}

// WithRootID 将生成树根节点 ID 写入 Context
func WithRootID(ctx context.Context, rootID string) context.Context {
	if ctx == nil {
		return nil
	}
	if id := strings.TrimSpace(rootID); id != "" {
		ctx = context.WithValue(ctx, logger.RootIDKey, id)
	}
	return ctx
}
