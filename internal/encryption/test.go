package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"symver/internal/versioner"
)

// testMagic starts every object written by TestEncryptor.
var testMagic = []byte("SVENC\x00\x00\x00")

// testMask scrambles payload bytes so stored objects never equal the plaintext.
const testMask = 0x5a

// ErrWrongPassphrase is returned by TestEncryptor.Unlock for a passphrase
// that differs from the one given to Setup.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. Objects are
// testMagic followed by the payload XORed with testMask. Before Setup any
// passphrase unlocks; after Setup only the same one does.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

var _ versioner.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.setup = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if err := maskCopy(w, r); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (versioner.DecryptionContext, error) {
	if e.setup && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext reverses TestEncryptor.Encrypt.
type TestDecryptionContext struct{}

var _ versioner.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testMagic) {
		return fmt.Errorf("invalid test encryption header")
	}
	if err := maskCopy(w, r); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}

// maskCopy copies r to w, XORing every byte with testMask.
func maskCopy(w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := bw.WriteByte(b ^ testMask); err != nil {
			return err
		}
	}
	return bw.Flush()
}
