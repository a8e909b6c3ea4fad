package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 后端错误分类
type ErrorKind string

const (
	ErrKindNotConfigured        ErrorKind = "provider_not_configured"
	ErrKindRateLimited          ErrorKind = "rate_limited"
	ErrKindAuthentication       ErrorKind = "authentication"
	ErrKindQuotaExceeded        ErrorKind = "quota_exceeded"
	ErrKindContentFiltered      ErrorKind = "content_filtered"
	ErrKindCancelled            ErrorKind = "cancelled"
	ErrKindTimeout              ErrorKind = "timeout"
	ErrKindServerError          ErrorKind = "server_error"
	ErrKindModelNotFound        ErrorKind = "model_not_found"
	ErrKindStreamingUnsupported ErrorKind = "streaming_unsupported"
	ErrKindUnknown              ErrorKind = "unknown"
)

// ProviderError 携带分类与作用方后端的类型化错误
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 该分类是否允许重试
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimited, ErrKindTimeout, ErrKindServerError:
		return true
	default:
		return false
	}
}

// NotConfigured 未配置后端
func NotConfigured(provider string) *ProviderError {
	return &ProviderError{Kind: ErrKindNotConfigured, Provider: provider}
}

// StreamingUnsupported 后端不支持流式生成
func StreamingUnsupported(provider string) *ProviderError {
	return &ProviderError{Kind: ErrKindStreamingUnsupported, Provider: provider}
}

// AsProviderError 提取 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}

// Classify 将后端客户端的原始错误归入统一分类。
// SDK 不提供稳定的错误类型，按状态码与报文特征匹配。
func Classify(err error, provider, model string) *ProviderError {
	if err == nil {
		return nil
	}
	if pe, ok := AsProviderError(err); ok {
		return pe
	}

	kind := ErrKindUnknown
	msg := strings.ToLower(err.Error())
	switch {
	// 调用方主动取消不可重试，重试只会撞上同一个 ctx.Done
	case errors.Is(err, context.Canceled) || strings.Contains(msg, "context canceled"):
		kind = ErrKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") || strings.Contains(msg, "too many requests"):
		kind = ErrKindRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "permission denied"):
		kind = ErrKindAuthentication
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "billing") || strings.Contains(msg, "credit"):
		kind = ErrKindQuotaExceeded
	case strings.Contains(msg, "content_filter") || strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety") || strings.Contains(msg, "blocked"):
		kind = ErrKindContentFiltered
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		kind = ErrKindTimeout
	case strings.Contains(msg, "model_not_found") ||
		(strings.Contains(msg, "model") && strings.Contains(msg, "not found")) ||
		(strings.Contains(msg, "model") && strings.Contains(msg, "does not exist")):
		kind = ErrKindModelNotFound
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "internal server error") || strings.Contains(msg, "service unavailable"):
		kind = ErrKindServerError
	}

	return &ProviderError{Kind: kind, Provider: provider, Model: model, Err: err}
}
