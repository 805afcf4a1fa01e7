package resume

import (
	"errors"
	"fmt"
)

// Kind 区分领域错误的类别，HTTP 层据此映射状态码。
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindNotAuthorized Kind = "not_authorized"
	KindValidation    Kind = "validation"
	KindDuplicateID   Kind = "duplicate_id"
	KindInvalidOrder  Kind = "invalid_order"
	KindMissingField  Kind = "missing_field"
	KindConflict      Kind = "conflict"
)

// Error 是简历内容模型返回的领域错误。
// 校验类错误会携带出错字段与原因。
type Error struct {
	Kind    Kind
	Field   string
	Reason  string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Field != "" && e.Reason != "":
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	default:
		return string(e.Kind)
	}
}

// Is 按 Kind 比较，使 errors.Is(err, ErrNotFound) 对任意消息生效。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrDuplicateID   = &Error{Kind: KindDuplicateID}
	ErrInvalidOrder  = &Error{Kind: KindInvalidOrder}
	ErrMissingField  = &Error{Kind: KindMissingField}
	ErrConflict      = &Error{Kind: KindConflict}
)

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func validationError(field, reason string) error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func duplicateID(msg string) error {
	return &Error{Kind: KindDuplicateID, Message: msg}
}

func missingField(field, msg string) error {
	return &Error{Kind: KindMissingField, Field: field, Message: msg}
}

// KindOf 返回错误的领域类别；非领域错误返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
