package postgres

import (
	"context"

	"gorm.io/gorm"

	"contentforge-ai-api/internal/domain/repository"
)

// TxManager 把一组仓储写操作纳入同一事务
type TxManager struct {
	client *Client
}

// NewTxManager 创建事务管理器
func NewTxManager(client *Client) *TxManager {
	return &TxManager{client: client}
}

// WithTransaction 在事务中执行 fn；嵌套调用复用外层事务，
// fn 返回错误时整体回滚
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	return m.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, repository.TxKey{}, tx))
	})
}

// txFrom 取出上下文中进行中的事务，没有则为 nil
func txFrom(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(repository.TxKey{}).(*gorm.DB)
	return tx
}

// getDB 优先使用进行中的事务，否则返回带上下文的普通连接
func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
