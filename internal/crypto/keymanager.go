// Package crypto 提供按租户派生密钥的字段级加密
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/pbkdf2"

	"tenantstore/internal/config"
	apperrors "tenantstore/pkg/errors"
	"tenantstore/pkg/metrics"
)

var tracer = otel.Tracer("crypto")

const (
	// keyLen AES-256 密钥长度
	keyLen = 32
	// saltLen 派生盐长度
	saltLen = 32
	// minIterations 迭代次数下限，低于该值视为配置错误
	minIterations = 100000
)

// tenantKey 单个租户的密钥材料
type tenantKey struct {
	salt []byte
	aead cipher.AEAD
}

// KeyManager 按租户管理对称密钥并执行字段加解密
// 密钥只存在于内存中；轮换不会重加密历史密文（见 DESIGN.md）
type KeyManager struct {
	secret     []byte
	iterations int

	mu   sync.RWMutex
	keys map[string]*tenantKey
}

// NewKeyManager 创建密钥管理器
func NewKeyManager(cfg *config.EncryptionConfig) (*KeyManager, error) {
	if cfg.MasterSecret == "" {
		return nil, fmt.Errorf("encryption master secret is required")
	}
	iterations := cfg.KDFIterations
	if iterations < minIterations {
		return nil, fmt.Errorf("kdf iterations must be >= %d, got %d", minIterations, iterations)
	}
	return &KeyManager{
		secret:     []byte(cfg.MasterSecret),
		iterations: iterations,
		keys:       make(map[string]*tenantKey),
	}, nil
}

// DeriveKey 确保租户密钥存在并返回其派生盐
// 密钥由 进程主密钥+租户 ID 经 PBKDF2-SHA256 加随机盐派生，
// 仅凭租户 ID 无法重建
func (m *KeyManager) DeriveKey(ctx context.Context, tenantID string) ([]byte, error) {
	_, span := tracer.Start(ctx, "crypto.KeyManager.DeriveKey")
	defer span.End()

	key, err := m.keyFor(tenantID)
	if err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("derive", "error").Inc()
		return nil, err
	}
	metrics.CryptoOperations.WithLabelValues("derive", "ok").Inc()

	salt := make([]byte, len(key.salt))
	copy(salt, key.salt)
	return salt, nil
}

// RotateKey 重新生成租户密钥材料
// 旧密钥下写入的密文在轮换后不可解，除非调用方自行执行重加密迁移
func (m *KeyManager) RotateKey(ctx context.Context, tenantID string) error {
	_, span := tracer.Start(ctx, "crypto.KeyManager.RotateKey")
	defer span.End()

	fresh, err := m.derive(tenantID)
	if err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("rotate", "error").Inc()
		return apperrors.ErrEncryption.WithError(err)
	}

	m.mu.Lock()
	m.keys[tenantID] = fresh
	m.mu.Unlock()

	metrics.CryptoOperations.WithLabelValues("rotate", "ok").Inc()
	return nil
}

// Encrypt 加密明文，返回 base64(nonce || ciphertext)
func (m *KeyManager) Encrypt(ctx context.Context, tenantID, plaintext string) (string, error) {
	_, span := tracer.Start(ctx, "crypto.KeyManager.Encrypt")
	defer span.End()

	key, err := m.keyFor(tenantID)
	if err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("encrypt", "error").Inc()
		return "", apperrors.ErrEncryption.WithError(err)
	}

	nonce := make([]byte, key.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("encrypt", "error").Inc()
		return "", apperrors.ErrEncryption.WithError(fmt.Errorf("failed to generate nonce: %w", err))
	}

	// 租户 ID 作为附加认证数据，密文搬移到其他租户后同样无法通过认证
	sealed := key.aead.Seal(nonce, nonce, []byte(plaintext), []byte(tenantID))
	metrics.CryptoOperations.WithLabelValues("encrypt", "ok").Inc()
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 Encrypt 产出的密文
// 密文不属于该租户或密钥已轮换时返回 ErrDecryption，绝不返回错误明文
func (m *KeyManager) Decrypt(ctx context.Context, tenantID, ciphertext string) (string, error) {
	_, span := tracer.Start(ctx, "crypto.KeyManager.Decrypt")
	defer span.End()

	key, err := m.keyFor(tenantID)
	if err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("decrypt", "error").Inc()
		return "", apperrors.ErrDecryption.WithError(err)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("decrypt", "error").Inc()
		return "", apperrors.ErrDecryption.WithError(fmt.Errorf("malformed ciphertext: %w", err))
	}
	if len(raw) < key.aead.NonceSize() {
		metrics.CryptoOperations.WithLabelValues("decrypt", "error").Inc()
		return "", apperrors.ErrDecryption.WithDetail("ciphertext too short")
	}

	nonce, sealed := raw[:key.aead.NonceSize()], raw[key.aead.NonceSize():]
	plaintext, err := key.aead.Open(nil, nonce, sealed, []byte(tenantID))
	if err != nil {
		span.RecordError(err)
		metrics.CryptoOperations.WithLabelValues("decrypt", "error").Inc()
		return "", apperrors.ErrDecryption.WithError(err)
	}

	metrics.CryptoOperations.WithLabelValues("decrypt", "ok").Inc()
	return string(plaintext), nil
}

// keyFor 获取租户密钥，不存在时在写锁内派生
func (m *KeyManager) keyFor(tenantID string) (*tenantKey, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	m.mu.RLock()
	key, ok := m.keys[tenantID]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// 双重检查，避免并发重复派生
	if key, ok := m.keys[tenantID]; ok {
		return key, nil
	}

	key, err := m.derive(tenantID)
	if err != nil {
		return nil, err
	}
	m.keys[tenantID] = key
	return key, nil
}

// derive 执行慢速 KDF 并构造 AEAD
func (m *KeyManager) derive(tenantID string) (*tenantKey, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	password := make([]byte, 0, len(m.secret)+len(tenantID))
	password = append(password, m.secret...)
	password = append(password, tenantID...)

	keyBytes := pbkdf2.Key(password, salt, m.iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to construct aead: %w", err)
	}

	return &tenantKey{salt: salt, aead: aead}, nil
}
