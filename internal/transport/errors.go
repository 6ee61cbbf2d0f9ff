package transport

import (
	"fmt"
)

// 传输层错误定义
var (
	ErrSessionClosed   = NewTpError(1001, "Session is closed", "")
	ErrAlreadyRunning  = NewTpError(1002, "Manager is already running", "")
	ErrNotConnected    = NewTpError(1003, "Not connected", "")
	ErrSessionNotFound = NewTpError(1004, "Session not found", "")
	ErrUnsupportedData = NewTpError(1005, "Unsupported outbound data", "")
)

type tpError struct {
	code    int
	msg     string
	context string
}

func (e *tpError) Error() string {
	if e.context != "" {
		return fmt.Sprintf("Error %d: %s (context: %s)", e.code, e.msg, e.context)
	}
	return fmt.Sprintf("Error %d: %s", e.code, e.msg)
}

// Code returns the numeric error code.
func (e *tpError) Code() int { return e.code }

// Is 只比较错误码，使带上下文的副本仍能与哨兵错误匹配
func (e *tpError) Is(target error) bool {
	t, ok := target.(*tpError)
	return ok && t.code == e.code
}

// WithContext returns a copy of e carrying extra context.
func (e *tpError) WithContext(context string) error {
	return NewTpError(e.code, e.msg, context)
}

func NewTpError(code int, message string, context string) *tpError {
	return &tpError{
		code:    code,
		msg:     message,
		context: context,
	}
}
