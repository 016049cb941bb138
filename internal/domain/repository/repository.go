// Package repository 定义数据访问层接口
package repository

import (
	"context"
)

// TxKey 事务上下文键类型
type TxKey struct{}

// Transactor 事务管理接口
type Transactor interface {
	// WithTransaction 在事务中执行操作
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository 隔离感知的通用 CRUD 契约
// 两种隔离策略实现同一契约；操作的目标租户一律取自
// 调用方 context 中的活动租户，绝不接受显式传入的租户 ID，
// 从而在调用点上杜绝跨租户误用。
type Repository[T any] interface {
	// GetByID 按 ID 获取实体，未找到返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*T, error)

	// GetAll 获取活动租户的全部实体
	GetAll(ctx context.Context) ([]*T, error)

	// Create 创建实体，写入包裹在事务中
	Create(ctx context.Context, e *T) error

	// Update 更新实体；ID 不属于活动租户时返回 (false, nil)
	Update(ctx context.Context, e *T) (bool, error)

	// Delete 删除实体；ID 不属于活动租户时返回 (false, nil)
	Delete(ctx context.Context, id string) (bool, error)
}

// Column 数据表列描述
type Column struct {
	// Name 列名
	Name string
	// Sensitive 是否为敏感字段，写入前加密、读出后解密
	Sensitive bool
}

// Mapping 描述实体类型与数据表之间的列映射
// Values 与 Dest 返回的切片必须与 Columns 一一对齐；
// 敏感列的值必须是 string（Values）/ *string（Dest）。
// 行隔离模式下的租户判别列由仓储透明补充，不在 Columns 中出现。
type Mapping[T any] struct {
	// Table 表名（不含 schema 前缀）
	Table string
	// IDColumn 主键列名，为空时默认 "id"
	IDColumn string
	// Columns 业务列，不含主键与租户判别列
	Columns []Column

	// ID 读取实体主键
	ID func(e *T) string
	// SetID 写入实体主键
	SetID func(e *T, id string)
	// Values 返回与 Columns 对齐的写入值
	Values func(e *T) []any
	// Dest 返回与 Columns 对齐的扫描目标指针
	Dest func(e *T) []any
}

// IDCol 返回主键列名
func (m Mapping[T]) IDCol() string {
	if m.IDColumn == "" {
		return "id"
	}
	return m.IDColumn
}

// HasSensitive 映射是否包含敏感列
func (m Mapping[T]) HasSensitive() bool {
	for _, c := range m.Columns {
		if c.Sensitive {
			return true
		}
	}
	return false
}

// FieldCipher 字段级加密端口
// 实现方按租户派生密钥，对标记为敏感的字段加解密
type FieldCipher interface {
	// Encrypt 加密明文，返回可直接落库的文本
	Encrypt(ctx context.Context, tenantID, plaintext string) (string, error)
	// Decrypt 解密密文；密文不属于该租户时返回错误而非错误明文
	Decrypt(ctx context.Context, tenantID, ciphertext string) (string, error)
}
