package service

import (
	"errors"
	"fmt"
)

// DuplicateVoteMessage 重复投票时展示给选民的提示
const DuplicateVoteMessage = "You have already voted in this election"

var (
	// ErrDuplicateVote 该选民已在此选举中投过票
	ErrDuplicateVote = errors.New("already voted in this election")
	// ErrValidation 输入不合法，未发生任何写入
	ErrValidation = errors.New("validation failed")
	// ErrWriteFailed 存储层写入失败
	ErrWriteFailed = errors.New("write failed")
	// ErrAuthFailed 注册、登录或会话解析失败
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotFound 选举或候选人不存在
	ErrNotFound = errors.New("not found")
)

// ValidationError 描述哪个字段不合法；errors.Is(err, ErrValidation) 成立
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// WriteError 保留存储层的原始错误信息，直接展示给用户
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }

func writeFailed(op string, err error) error {
	return &WriteError{Op: op, Err: err}
}

// AuthError 认证失败及原因
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

func authFailed(format string, args ...interface{}) error {
	return &AuthError{Reason: fmt.Sprintf(format, args...)}
}
