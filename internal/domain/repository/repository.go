// Package repository 声明领域聚合的数据访问接口
package repository

import "context"

// TxKey 在 context 中携带进行中事务的键。
// postgres 实现据此让嵌套仓储调用复用同一事务句柄。
type TxKey struct{}

// Transactor 将一组写操作纳入同一事务执行，
// fn 返回错误时整体回滚
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
