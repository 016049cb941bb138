// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"github.com/gin-gonic/gin"

	"tenantstore/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorResponse 错误响应结构，code 为业务错误码
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(200, Response[T]{
		Code:    200,
		Message: "success",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Created 返回创建成功响应 (201)
func Created[T any](c *gin.Context, data T) {
	c.JSON(201, Response[T]{
		Code:    201,
		Message: "created",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// NoContent 返回无内容响应 (204)
func NoContent(c *gin.Context) {
	c.Status(204)
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(400, ErrorResponse{
		Code:    errors.CodeInvalidParam,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, message string) {
	c.JSON(404, ErrorResponse{
		Code:    errors.CodeNotFound,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// FromAppError 按错误携带的 HTTP 状态返回错误响应
func FromAppError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	c.JSON(appErr.HTTPStatus, ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
		TraceID: c.GetString("trace_id"),
	})
}
