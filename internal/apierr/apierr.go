// Package apierr 定义网关对外的封闭错误分类，并负责把内部错误翻译成带 code 的结构化响应。
package apierr

import (
	"errors"
	"log/slog"
	"net/http"
)

type Kind string

const (
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidID          Kind = "INVALID_ID"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindEmailNotConfigured Kind = "EMAIL_NOT_CONFIGURED"
	KindInvalidLicense     Kind = "INVALID_LICENSE"
	KindNotEnabled         Kind = "NOT_ENABLED"
)

// FieldError 是单个字段的校验失败项；一次响应会携带全部出错字段，而不是首错即返。
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	return e.Message
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func InvalidID() *Error {
	return &Error{Kind: KindInvalidID, Message: "无效的 ID"}
}

func InvalidLicense(msg string) *Error {
	return &Error{Kind: KindInvalidLicense, Message: msg}
}

func EmailNotConfigured() *Error {
	return &Error{Kind: KindEmailNotConfigured, Message: "SMTP 未配置"}
}

func NotEnabled(msg string) *Error {
	return &Error{Kind: KindNotEnabled, Message: msg}
}

func InvalidInput(fields ...FieldError) *Error {
	return &Error{Kind: KindInvalidInput, Message: "参数校验未通过", Fields: fields}
}

// Envelope 是所有失败响应的统一外壳；code 为空表示基础设施类错误（不暴露结构化分类）。
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Code    Kind         `json:"code,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Data    any          `json:"data,omitempty"`
}

// Translate 把任意错误映射为 HTTP 状态码与响应外壳。
// 未归类的错误按基础设施失败处理：消息透传但不携带 code，也绝不携带堆栈。
func Translate(err error) (int, Envelope) {
	var ae *Error
	if errors.As(err, &ae) {
		return statusOf(ae.Kind), Envelope{
			Success: false,
			Message: ae.Message,
			Code:    ae.Kind,
			Errors:  ae.Fields,
		}
	}

	slog.Error("未归类的请求错误", "err", err)
	return http.StatusInternalServerError, Envelope{Success: false, Message: err.Error()}
}

func statusOf(k Kind) int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidID, KindInvalidInput:
		return http.StatusBadRequest
	case KindEmailNotConfigured, KindNotEnabled:
		return http.StatusBadRequest
	case KindInvalidLicense:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Validator 逐字段收集校验失败项，最终一次性生成 InvalidInput。
type Validator struct {
	fields []FieldError
}

func (v *Validator) Fail(path, message string) {
	v.fields = append(v.fields, FieldError{Path: path, Message: message})
}

func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return InvalidInput(v.fields...)
}
