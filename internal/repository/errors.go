package repository

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateEdge 唯一索引冲突：并发关注时输掉竞争的一方
	ErrDuplicateEdge = errors.New("follow edge already exists")
	// ErrInvalidQuery 查询参数无法解析（如日期范围）
	ErrInvalidQuery = errors.New("invalid query")
)

// StoreError wraps an underlying persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "follow store: " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: errors.WithStack(err)}
}

// isUniqueViolation 依赖 gorm.Config.TranslateError，文本匹配兜底未开启翻译的连接
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
