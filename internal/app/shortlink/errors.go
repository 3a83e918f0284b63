package shortlink

import (
	"errors"
	"fmt"
)

// 用例层错误：HTTP 层按这些哨兵值映射状态码与固定文案。
var (
	ErrMissingURL = errors.New("url is required")
	ErrAliasTaken = errors.New("alias is already taken")
	ErrNotFound   = errors.New("url not found or expired")
)

// 存储层错误：Store 的实现必须用这些值表达"查不到"和"唯一约束冲突"。
//
// 冲突按约束区分：
// - ErrCodeConflict：short_code 已存在
// - ErrAliasConflict：custom_alias 已存在（稀疏唯一，空串不参与）
var (
	ErrRecordNotFound = errors.New("shortlink record not found")
	ErrCodeConflict   = errors.New("shortlink code already exists")
	ErrAliasConflict  = errors.New("shortlink alias already exists")
)

// PersistenceError 包装未被归类的存储失败，Op 标记是哪一步出的错。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("shortlink %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err came from the record store.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
