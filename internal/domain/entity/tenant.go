// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"
)

// IsolationStrategy 租户数据隔离策略
type IsolationStrategy string

const (
	// IsolationSchema 每租户独立 schema，由数据库命名空间提供隔离
	IsolationSchema IsolationStrategy = "schema"
	// IsolationRow 共享表加租户判别列，由仓储层过滤提供隔离
	IsolationRow IsolationStrategy = "row"
)

// Valid 检查隔离策略是否合法
func (s IsolationStrategy) Valid() bool {
	return s == IsolationSchema || s == IsolationRow
}

// TenantStatus 租户状态
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// TenantBackupConfig 租户级备份覆盖配置
type TenantBackupConfig struct {
	// MaxBackups 保留份数，0 表示使用全局默认
	MaxBackups int `json:"max_backups,omitempty"`
	// Location 备份目录覆盖，为空表示使用全局根目录
	Location string `json:"location,omitempty"`
}

// TenantContext 标识一个租户在请求/任务存续期间的全部激活参数
// 隔离策略在租户创建时确定，之后不可变更
type TenantContext struct {
	TenantID          string              `json:"tenant_id"`
	IsolationStrategy IsolationStrategy   `json:"isolation_strategy"`
	SchemaName        string              `json:"schema_name,omitempty"`
	ConnectionTarget  string              `json:"connection_target,omitempty"`
	Status            TenantStatus        `json:"status"`
	Metadata          map[string]string   `json:"metadata,omitempty"`
	BackupConfig      *TenantBackupConfig `json:"backup_config,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// NewTenantContext 创建新的租户上下文
func NewTenantContext(tenantID string, strategy IsolationStrategy) *TenantContext {
	now := time.Now()
	return &TenantContext{
		TenantID:          tenantID,
		IsolationStrategy: strategy,
		Status:            TenantStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Validate 检查激活参数的完整性
func (t *TenantContext) Validate() error {
	if t.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !t.IsolationStrategy.Valid() {
		return fmt.Errorf("unknown isolation strategy: %s", t.IsolationStrategy)
	}
	if t.IsolationStrategy == IsolationSchema && t.SchemaName == "" {
		return fmt.Errorf("schema name is required for schema isolation")
	}
	return nil
}

// IsActive 检查租户是否活跃
func (t *TenantContext) IsActive() bool {
	return t.Status == TenantStatusActive
}
