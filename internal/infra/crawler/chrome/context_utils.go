package chrome

import "context"

// CombineContext 派生自 ctx1 (携带 CDP 目标信息) 的上下文, ctx1 或 ctx2 任一取消即取消.
// 调用方的截止时间在 ctx2 上, chromedp 需要的值只在 ctx1 上.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
