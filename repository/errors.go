package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 唯一约束冲突，具体原因见 ConflictError.Kind
	ErrConflict = errors.New("unique constraint violated")
)

// ConflictKind 标识是哪一个唯一约束被违反
type ConflictKind string

const (
	ConflictVoteExists  ConflictKind = "vote_exists"  // (voter_id, election_id)
	ConflictEmailExists ConflictKind = "email_exists" // profiles.email
	ConflictOther       ConflictKind = "other"
)

// ConflictError 是存储层返回的类型化冲突错误
type ConflictError struct {
	Kind ConflictKind
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrConflict) 对任意 ConflictError 成立
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IsConflict 判断 err 是否为指定类型的唯一约束冲突
func IsConflict(err error, kind ConflictKind) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Kind == kind
}

// translate 将 gorm 的哨兵错误转换为仓储层错误，其余错误原样返回
func translate(err error, onDuplicate ConflictKind) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &ConflictError{Kind: onDuplicate, Err: err}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}
