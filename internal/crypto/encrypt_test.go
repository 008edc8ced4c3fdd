package crypto_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"

	"github.com/dukerupert/botica/internal/crypto"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/session"
	"github.com/dukerupert/botica/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEncryptor(t *testing.T) *crypto.AESEncryptor {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	enc, err := crypto.NewAESEncryptor(key)
	require.NoError(t, err)
	return enc
}

func buyerCreds() domain.Credentials {
	return domain.Credentials{
		Token:   "eyJhbGciOiJIUzI1NiJ9.buyer",
		Profile: domain.UserProfile{DNI: "45678901"},
	}
}

func credentialsKey(sessionID string) string {
	return "sessions/" + sessionID + "/credentials.json"
}

func readRaw(t *testing.T, store storage.Storage, key string) []byte {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	return raw
}

func TestAESEncryptor_SealsCredentials(t *testing.T) {
	enc := newEncryptor(t)
	plain, err := json.Marshal(buyerCreds())
	require.NoError(t, err)

	first, err := enc.Encrypt(plain)
	require.NoError(t, err)
	second, err := enc.Encrypt(plain)
	require.NoError(t, err)

	assert.NotContains(t, string(first), "buyer")
	assert.NotContains(t, string(first), "45678901")
	assert.NotEqual(t, first, second, "nonce must differ per seal")

	opened, err := enc.Decrypt(first)
	require.NoError(t, err)
	var got domain.Credentials
	require.NoError(t, json.Unmarshal(opened, &got))
	assert.Equal(t, buyerCreds(), got)
}

func TestAESEncryptor_SessionRoundTrip(t *testing.T) {
	store := storage.NewMemoryStorage()
	id := session.NewID()
	s := session.NewRepository(store, nil).WithEncryptor(newEncryptor(t)).For(id)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, buyerCreds()))

	raw := readRaw(t, store, credentialsKey(id))
	assert.NotContains(t, string(raw), "eyJhbGciOiJIUzI1NiJ9")
	_, err := base64.StdEncoding.DecodeString(string(raw))
	assert.NoError(t, err, "sealed credentials are stored base64 encoded")

	got, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, buyerCreds(), got)
	assert.True(t, got.Authenticated())
}

func TestAESEncryptor_TamperedCredentials(t *testing.T) {
	enc := newEncryptor(t)
	store := storage.NewMemoryStorage()
	id := session.NewID()
	s := session.NewRepository(store, nil).WithEncryptor(enc).For(id)
	ctx := context.Background()
	require.NoError(t, s.SaveCredentials(ctx, buyerCreds()))

	sealed, err := base64.StdEncoding.DecodeString(string(readRaw(t, store, credentialsKey(id))))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	tampered := []byte(base64.StdEncoding.EncodeToString(sealed))

	_, err = enc.Decrypt(tampered)
	assert.Error(t, err)

	_, err = store.Put(ctx, credentialsKey(id), bytes.NewReader(tampered), "application/octet-stream")
	require.NoError(t, err)

	// The session reads as logged out rather than failing.
	got, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
	assert.Empty(t, got.Profile.DNI)
}

func TestAESEncryptor_WrongKey(t *testing.T) {
	store := storage.NewMemoryStorage()
	id := session.NewID()
	ctx := context.Background()

	sealer := newEncryptor(t)
	require.NoError(t, session.NewRepository(store, nil).WithEncryptor(sealer).For(id).SaveCredentials(ctx, buyerCreds()))

	other := newEncryptor(t)
	_, err := other.Decrypt(readRaw(t, store, credentialsKey(id)))
	assert.Error(t, err)

	// A rotated key logs every buyer out.
	got, err := session.NewRepository(store, nil).WithEncryptor(other).For(id).LoadCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
}

func TestAESEncryptor_Decrypt_Malformed(t *testing.T) {
	enc := newEncryptor(t)

	_, err := enc.Decrypt([]byte("not base64!!"))
	assert.Error(t, err)

	short := []byte(base64.StdEncoding.EncodeToString([]byte("abc")))
	_, err = enc.Decrypt(short)
	assert.ErrorIs(t, err, crypto.ErrCiphertextTooShort)
}

func TestNewAESEncryptor_KeySize(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"nil", nil},
		{"aes-128", make([]byte, 16)},
		{"too long", make([]byte, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.NewAESEncryptor(tt.key)
			assert.ErrorIs(t, err, crypto.ErrKeySize)
		})
	}
}

func TestDecodeKeyBase64(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	// SESSION_ENCRYPTION_KEY carries the key in this form.
	decoded, err := crypto.DecodeKeyBase64(crypto.EncodeKeyBase64(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = crypto.DecodeKeyBase64(crypto.EncodeKeyBase64(make([]byte, 16)))
	assert.Error(t, err)
	_, err = crypto.DecodeKeyBase64("%%%")
	assert.Error(t, err)
}
