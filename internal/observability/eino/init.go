// Package eino 注册 Eino 全局回调：每次模型调用产出
// 一个携带后端与用量属性的追踪 Span。
package eino

import (
	"sync"

	einocb "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var registerOnce sync.Once

// Init 安装全局模型回调，进程内仅执行一次
func Init() {
	registerOnce.Do(func() {
		einocb.AppendGlobalHandlers(
			cbtemplate.NewHandlerHelper().
				ChatModel(newChatModelCallbackHandler()).
				Handler(),
		)
	})
}
