// Package errors 提供带错误码与 HTTP 状态映射的应用错误
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 应用错误码。1xxx 通用，3xxx 资源，4xxx 业务，5xxx 外部依赖
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "1000"
	CodeInternalError ErrorCode = "1007"

	CodeNodeNotFound ErrorCode = "3001"
	CodeTreeNotFound ErrorCode = "3002"

	CodeGenerationFailed ErrorCode = "4001"
	CodeValidationFailed ErrorCode = "4002"
	CodeTreeCycle        ErrorCode = "4004"

	CodeDatabaseError ErrorCode = "5001"
	CodeCacheError    ErrorCode = "5002"
)

// codeStatus 错误码到 HTTP 状态码的映射；未列出的按 500 处理
var codeStatus = map[ErrorCode]int{
	CodeValidationFailed: http.StatusBadRequest,
	CodeNodeNotFound:     http.StatusNotFound,
	CodeTreeNotFound:     http.StatusNotFound,
	CodeTreeCycle:        http.StatusConflict,
}

// AppError 应用错误，跨层传递错误码、展示消息与底层原因
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 附加面向调用方的细节（如出错的资源 ID）
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// New 创建应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusOf(code)}
}

// Wrap 以应用错误包装底层错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusOf(code), Err: err}
}

func statusOf(code ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsAppError 判断错误链上是否存在 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 提取错误链上的 AppError，没有则归为未知错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
