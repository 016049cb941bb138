// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeInternalError      ErrorCode = "1006"
	CodeServiceUnavailable ErrorCode = "1007"

	// 租户隔离错误 (2xxx)
	CodeCrossTenantAccess    ErrorCode = "2001"
	CodeTenantNotConfigured  ErrorCode = "2002"
	CodeInvalidTenantContext ErrorCode = "2003"
	CodeTenantNotFound       ErrorCode = "2004"
	CodeTenantSuspended      ErrorCode = "2005"

	// 数据层错误 (3xxx)
	CodeDatabaseError  ErrorCode = "3001"
	CodePoolExhausted  ErrorCode = "3002"
	CodeCacheError     ErrorCode = "3003"
	CodeEntityNotFound ErrorCode = "3004"

	// 备份/加密错误 (4xxx)
	CodeBackupTool     ErrorCode = "4001"
	CodeBackupNotFound ErrorCode = "4002"
	CodeEncryption     ErrorCode = "4003"
	CodeDecryption     ErrorCode = "4004"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使预定义错误可与 errors.Is 配合使用
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeTenantNotConfigured:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeCrossTenantAccess, CodeInvalidTenantContext, CodeTenantSuspended:
		return http.StatusForbidden
	case CodeNotFound, CodeTenantNotFound, CodeEntityNotFound, CodeBackupNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePoolExhausted, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	// ErrCrossTenantAccess 活动租户与被访问租户不一致，对当前操作始终致命
	ErrCrossTenantAccess = New(CodeCrossTenantAccess, "cross-tenant access denied")
	// ErrTenantNotConfigured 当前上下文没有任何活动租户
	ErrTenantNotConfigured = New(CodeTenantNotConfigured, "no active tenant context")
	// ErrInvalidTenantContext 门面操作的目标租户与活动上下文不匹配
	ErrInvalidTenantContext = New(CodeInvalidTenantContext, "tenant context mismatch")
	ErrTenantNotFound       = New(CodeTenantNotFound, "tenant not found")
	ErrTenantSuspended      = New(CodeTenantSuspended, "tenant suspended")

	ErrDatabaseError  = New(CodeDatabaseError, "database error")
	ErrPoolExhausted  = New(CodePoolExhausted, "connection pool exhausted")
	ErrCacheError     = New(CodeCacheError, "cache error")
	ErrEntityNotFound = New(CodeEntityNotFound, "entity not found")

	ErrBackupTool     = New(CodeBackupTool, "backup tool failed")
	ErrBackupNotFound = New(CodeBackupNotFound, "backup artifact not found")
	ErrEncryption     = New(CodeEncryption, "encryption failed")
	ErrDecryption     = New(CodeDecryption, "decryption failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
