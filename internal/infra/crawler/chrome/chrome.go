package chrome

import (
	"os/exec"
	"slices"

	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
)

// 触发懒加载的整页滚动
const scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight);`

// 常见的 Chrome/Chromium 可执行文件名
var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

// LookChrome 在 PATH 中查找可用的浏览器
func LookChrome() (string, bool) {
	for _, name := range chromeNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func removeHandle(order []types.Handle, h types.Handle) []types.Handle {
	return slices.DeleteFunc(order, func(x types.Handle) bool { return x == h })
}
