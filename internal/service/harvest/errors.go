package harvest

import (
	"errors"
	"fmt"

	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
)

// ErrExtract 详情页无法读取 (上下文已失效等), 不是字段缺失
var ErrExtract = errors.New("extract author fields")

// ErrRow 列表行缺少标题或作者链接
var ErrRow = errors.New("malformed listing row")

// PanicError 单个条目处理过程中的 panic
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// CleanupError 关闭详情页上下文或切回列表页失败
type CleanupError struct {
	Handle types.Handle
	Err    error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup context %q: %v", e.Handle, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Reason 错误在指标中的标签
func Reason(err error) string {
	var (
		pe *PanicError
		ce *CleanupError
		te *types.TimeoutError
		ne *types.NavigationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "panic"
	case errors.As(err, &ce):
		return "cleanup"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ne):
		return "navigation"
	case errors.Is(err, ErrExtract):
		return "extract"
	case errors.Is(err, ErrRow):
		return "row"
	default:
		return "other"
	}
}
