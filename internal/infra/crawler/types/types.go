package types

import (
	"errors"
	"fmt"
	"time"
)

// Handle 浏览上下文(标签页)的标识
type Handle string

// ErrUnknownContext 句柄不存在或已关闭
var ErrUnknownContext = errors.New("unknown browsing context")

// ErrClosed 浏览器会话已关闭
var ErrClosed = errors.New("browser session closed")

// TimeoutError 在限定时间内没有出现匹配 Selector 的元素
type TimeoutError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %q", e.Timeout, e.Selector)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// NavigationError 页面加载失败
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
