// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"fmt"

	"tenantstore/internal/domain/repository"
)

// encryptValues 对标记为敏感的列值加密，返回可落库的值切片
// 非敏感列原样透传
func encryptValues[T any](ctx context.Context, cipher repository.FieldCipher, m repository.Mapping[T], tenantID string, values []any) ([]any, error) {
	if len(values) != len(m.Columns) {
		return nil, fmt.Errorf("mapping values mismatch: %d values for %d columns", len(values), len(m.Columns))
	}

	out := make([]any, len(values))
	copy(out, values)
	for i, col := range m.Columns {
		if !col.Sensitive {
			continue
		}
		plain, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("sensitive column %s must map to a string value", col.Name)
		}
		ct, err := cipher.Encrypt(ctx, tenantID, plain)
		if err != nil {
			return nil, err
		}
		out[i] = ct
	}
	return out, nil
}

// sensitiveSwap 记录一对扫描目标：密文先落入 tmp，解密后写回 orig
type sensitiveSwap struct {
	column string
	orig   *string
	tmp    *string
}

// prepareDests 为扫描替换敏感列的目标指针
// 返回实际用于 Scan 的切片以及待解密的替换记录
func prepareDests[T any](m repository.Mapping[T], dests []any) ([]any, []sensitiveSwap, error) {
	if len(dests) != len(m.Columns) {
		return nil, nil, fmt.Errorf("mapping dests mismatch: %d dests for %d columns", len(dests), len(m.Columns))
	}

	out := make([]any, len(dests))
	copy(out, dests)
	var swaps []sensitiveSwap
	for i, col := range m.Columns {
		if !col.Sensitive {
			continue
		}
		orig, ok := dests[i].(*string)
		if !ok {
			return nil, nil, fmt.Errorf("sensitive column %s must map to a *string dest", col.Name)
		}
		tmp := new(string)
		out[i] = tmp
		swaps = append(swaps, sensitiveSwap{column: col.Name, orig: orig, tmp: tmp})
	}
	return out, swaps, nil
}

// applySwaps 解密扫描到的密文并写回实体字段
func applySwaps(ctx context.Context, cipher repository.FieldCipher, tenantID string, swaps []sensitiveSwap) error {
	for _, s := range swaps {
		plain, err := cipher.Decrypt(ctx, tenantID, *s.tmp)
		if err != nil {
			return err
		}
		*s.orig = plain
	}
	return nil
}
