package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/internal/config"
	apperrors "tenantstore/pkg/errors"
)

func newTestManager(t *testing.T) *KeyManager {
	t.Helper()
	km, err := NewKeyManager(&config.EncryptionConfig{
		MasterSecret:  "test-master-secret",
		KDFIterations: 100000,
	})
	require.NoError(t, err)
	return km
}

func TestNewKeyManagerValidation(t *testing.T) {
	_, err := NewKeyManager(&config.EncryptionConfig{KDFIterations: 100000})
	assert.Error(t, err, "missing master secret must be rejected")

	_, err = NewKeyManager(&config.EncryptionConfig{
		MasterSecret:  "s",
		KDFIterations: 1000,
	})
	assert.Error(t, err, "weak iteration count must be rejected")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	km := newTestManager(t)
	ctx := context.Background()

	plaintexts := []string{"", "secret value", "含中文的敏感字段", "a\x00b"}
	for _, p := range plaintexts {
		ct, err := km.Encrypt(ctx, "acme", p)
		require.NoError(t, err)
		assert.NotEqual(t, p, ct)

		got, err := km.Decrypt(ctx, "acme", ct)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestCrossTenantDecryptFails(t *testing.T) {
	km := newTestManager(t)
	ctx := context.Background()

	ct, err := km.Encrypt(ctx, "acme", "widget price list")
	require.NoError(t, err)

	_, err = km.Decrypt(ctx, "globex", ct)
	assert.ErrorIs(t, err, apperrors.ErrDecryption)
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	km := newTestManager(t)
	ctx := context.Background()

	_, err := km.Decrypt(ctx, "acme", "not-base64!!!")
	assert.ErrorIs(t, err, apperrors.ErrDecryption)

	_, err = km.Decrypt(ctx, "acme", "c2hvcnQ=") // 合法 base64 但比 nonce 还短
	assert.ErrorIs(t, err, apperrors.ErrDecryption)
}

func TestRotateKeyInvalidatesOldCiphertext(t *testing.T) {
	km := newTestManager(t)
	ctx := context.Background()

	ct, err := km.Encrypt(ctx, "acme", "pre-rotation data")
	require.NoError(t, err)

	require.NoError(t, km.RotateKey(ctx, "acme"))

	// 轮换不重加密既有数据：旧密文在新密钥下必须解密失败
	_, err = km.Decrypt(ctx, "acme", ct)
	assert.ErrorIs(t, err, apperrors.ErrDecryption)

	// 轮换后的新密钥正常工作
	ct2, err := km.Encrypt(ctx, "acme", "post-rotation data")
	require.NoError(t, err)
	got, err := km.Decrypt(ctx, "acme", ct2)
	require.NoError(t, err)
	assert.Equal(t, "post-rotation data", got)
}

func TestDeriveKeyReturnsSaltCopy(t *testing.T) {
	km := newTestManager(t)
	ctx := context.Background()

	salt, err := km.DeriveKey(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, salt, saltLen)

	// 篡改返回值不得影响内部盐
	salt[0] ^= 0xff
	again, err := km.DeriveKey(ctx, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, salt[0], again[0])
}

func TestEncryptRequiresTenantID(t *testing.T) {
	km := newTestManager(t)
	_, err := km.Encrypt(context.Background(), "", "data")
	assert.ErrorIs(t, err, apperrors.ErrEncryption)
}
