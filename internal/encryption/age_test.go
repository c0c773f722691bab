package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symver/internal/config"
)

const agePassphrase = "correct horse battery staple"

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "symver.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "symver.key"),
	})
}

// Key generation runs scrypt, so one key pair is shared by the subtests.
func TestAgeEncryptor(t *testing.T) {
	e := newTestAgeEncryptor(t)
	require.False(t, e.IsConfigured())
	require.NoError(t, e.Setup(agePassphrase))
	require.True(t, e.IsConfigured())

	t.Run("key files", func(t *testing.T) {
		pub, err := os.ReadFile(e.publicKeyPath)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(pub, []byte("age1")), "public key is a plaintext age recipient")

		info, err := os.Stat(e.privateKeyPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		wrapped, err := os.ReadFile(e.privateKeyPath)
		require.NoError(t, err)
		assert.NotContains(t, string(wrapped), "AGE-SECRET-KEY", "private key is never stored in the clear")
	})

	dec, err := e.Unlock(agePassphrase)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		for _, input := range [][]byte{
			[]byte("hello world"),
			{},
			{0x00, 0xff, 0x01, 0xfe},
			bytes.Repeat([]byte("abcdef"), 100000),
		} {
			var sealed bytes.Buffer
			require.NoError(t, e.Encrypt(bytes.NewReader(input), &sealed))
			if len(input) > 0 {
				assert.NotContains(t, sealed.String(), string(input))
			}

			var opened bytes.Buffer
			require.NoError(t, dec.Decrypt(&sealed, &opened))
			assert.Equal(t, len(input), opened.Len())
			assert.True(t, bytes.Equal(input, opened.Bytes()))
		}
	})

	t.Run("concurrent encryption", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 8)
		out := make([]bytes.Buffer, 8)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = e.Encrypt(bytes.NewReader([]byte("file content")), &out[i])
			}()
		}
		wg.Wait()

		for i := range errs {
			require.NoError(t, errs[i])
			var opened bytes.Buffer
			require.NoError(t, dec.Decrypt(&out[i], &opened))
			assert.Equal(t, "file content", opened.String())
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := e.Unlock("wrong")
		assert.Error(t, err)
	})

	t.Run("setup refuses to replace keys", func(t *testing.T) {
		assert.Error(t, e.Setup("another"))
		_, err := e.Unlock(agePassphrase)
		assert.NoError(t, err, "original passphrase still unlocks")
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		var sealed bytes.Buffer
		require.NoError(t, e.Encrypt(bytes.NewReader([]byte("payload")), &sealed))
		b := sealed.Bytes()
		b[len(b)-1] ^= 0xff

		var opened bytes.Buffer
		assert.Error(t, dec.Decrypt(bytes.NewReader(b), &opened))
	})
}

func TestAgeEncryptor_WithoutKeys(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	var buf bytes.Buffer
	assert.Error(t, e.Encrypt(bytes.NewReader([]byte("data")), &buf))
	_, err := e.Unlock("passphrase")
	assert.Error(t, err)
}

func TestAgeEncryptor_SetupRejectsEmptyPassphrase(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	assert.Error(t, e.Setup(""))
	assert.False(t, e.IsConfigured())
}
