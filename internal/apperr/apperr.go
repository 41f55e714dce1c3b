// Package apperr 定义对外暴露的错误分类（kind:domain 形式）。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误类别。
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimit    Kind = "rate_limit"
	KindOffline      Kind = "offline"
	KindInternal     Kind = "internal_server_error"
)

// Domain 是出错的业务域。
type Domain string

const (
	DomainChat   Domain = "chat"
	DomainVote   Domain = "vote"
	DomainAPI    Domain = "api"
	DomainStream Domain = "stream"
	DomainAuth   Domain = "auth"
	DomainFile   Domain = "file"
)

// Error 是携带稳定机器码的业务错误。
type Error struct {
	Kind   Kind
	Domain Domain
	Detail string
	cause  error
}

// New 创建一个错误，detail 为可选的补充说明。
func New(kind Kind, domain Domain, detail ...string) *Error {
	e := &Error{Kind: kind, Domain: domain}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	return e
}

// Wrap 创建一个带底层原因的错误，原因只用于服务端日志。
func Wrap(kind Kind, domain Domain, cause error) *Error {
	return &Error{Kind: kind, Domain: domain, cause: cause}
}

// Code 返回 "kind:domain" 形式的错误码。
func (e *Error) Code() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Domain)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code(), e.cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code(), e.Detail)
	}
	return e.Code()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status 返回对应的 HTTP 状态码。
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回面向用户的说明文字。
func (e *Error) Message() string {
	if msg, ok := messages[e.Code()]; ok {
		return msg
	}
	switch e.Kind {
	case KindBadRequest:
		return "The request couldn't be processed. Please check your input and try again."
	case KindUnauthorized:
		return "You need to sign in before continuing."
	case KindForbidden:
		return "Your account does not have access to this resource."
	case KindNotFound:
		return "The requested resource was not found."
	case KindRateLimit:
		return "You have exceeded your rate limit. Please try again later."
	case KindOffline:
		return "We're having trouble reaching the service. Please check your connection and try again."
	}
	return "Something went wrong. Please try again later."
}

var messages = map[string]string{
	"unauthorized:chat": "You need to sign in to view this chat. Please sign in and try again.",
	"forbidden:chat":    "This chat belongs to another user. Please check the chat ID and try again.",
	"not_found:chat":    "The requested chat was not found. Please check the chat ID and try again.",
	"rate_limit:chat":   "You have exceeded your maximum number of messages for the day! Please try again later.",
	"offline:chat":      "We're having trouble sending your message. Please check your internet connection and try again.",
	"not_found:stream":  "No resumable stream exists for this chat.",
	"unauthorized:vote": "You need to sign in to vote on messages.",
	"forbidden:vote":    "You can only vote on messages in your own chats.",
	"not_found:vote":    "The chat you are voting on was not found.",
	"bad_request:api":   "The request couldn't be processed. Please check your input and try again.",
	"unauthorized:auth": "You need to sign in before continuing.",
	"forbidden:auth":    "Your account does not have access to this feature.",
}

// As 从错误链中提取 *Error。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is 判断错误链中是否包含指定错误码。
func Is(err error, kind Kind, domain Domain) bool {
	e, ok := As(err)
	return ok && e.Kind == kind && e.Domain == domain
}
