// Package fieldcrypt encrypts PII columns at rest with AES-256-GCM.
//
// Values are stored as hex(nonce) + ":" + hex(ciphertext||tag). Searchable
// columns use a nonce derived from the plaintext so equal inputs produce equal
// ciphertext and can be matched in a WHERE clause; other columns use random
// nonces.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// Delimiter separates the nonce from the sealed payload
	Delimiter = ":"
	// MinCiphertextLength is the shape threshold. The shortest real envelope
	// (empty plaintext) is 24 + 1 + 32 = 57 characters.
	MinCiphertextLength = 50

	nonceSize = 12
	keySize   = 32
)

var (
	// ErrMalformed is returned for values shaped like ciphertext that cannot be parsed
	ErrMalformed = errors.New("malformed ciphertext envelope")
	// ErrDecrypt is returned when authentication of the sealed payload fails
	ErrDecrypt = errors.New("failed to decrypt value")
)

// IsCiphertext reports whether v looks like an envelope. The check is a
// heuristic: a long plaintext containing the delimiter is misclassified.
func IsCiphertext(v string) bool {
	return strings.Contains(v, Delimiter) && len(v) > MinCiphertextLength
}

// Codec encrypts and decrypts field values
type Codec struct {
	aead     cipher.AEAD
	nonceKey []byte
	schema   Schema
}

// NewCodec derives key material from secret and salt
func NewCodec(secret, salt string, schema Schema) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	master := argon2.IDKey([]byte(secret), []byte(salt), 1, 64*1024, 4, keySize)

	kdf := hkdf.New(sha256.New, master, nil, []byte("storefront-field-encryption/v1"))
	encKey := make([]byte, keySize)
	nonceKey := make([]byte, keySize)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	if _, err := io.ReadFull(kdf, nonceKey); err != nil {
		return nil, fmt.Errorf("failed to derive nonce key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return &Codec{
		aead:     aead,
		nonceKey: nonceKey,
		schema:   schema,
	}, nil
}

// Schema returns the encrypted column layout
func (c *Codec) Schema() Schema {
	return c.schema
}

// Encrypt seals v with a random nonce
func (c *Codec) Encrypt(v string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.seal(nonce, v), nil
}

// EncryptSearchable seals v deterministically for the given column
func (c *Codec) EncryptSearchable(table, field, v string) string {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write([]byte(table))
	mac.Write([]byte{0})
	mac.Write([]byte(field))
	mac.Write([]byte{0})
	mac.Write([]byte(v))
	return c.seal(mac.Sum(nil)[:nonceSize], v)
}

// EncryptField encrypts v according to the schema of table.field.
// Empty values and values already in envelope shape are returned unchanged.
func (c *Codec) EncryptField(table, field, v string) (string, error) {
	if v == "" || IsCiphertext(v) {
		return v, nil
	}
	if c.schema.IsSearchable(table, field) {
		return c.EncryptSearchable(table, field, v), nil
	}
	return c.Encrypt(v)
}

// Decrypt opens v. Values not in envelope shape are returned unchanged, so
// decrypting plaintext is a no-op.
func (c *Codec) Decrypt(v string) (string, error) {
	if !IsCiphertext(v) {
		return v, nil
	}

	nonceHex, sealedHex, _ := strings.Cut(v, Delimiter)
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != nonceSize {
		return v, ErrMalformed
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil || len(sealed) < c.aead.Overhead() {
		return v, ErrMalformed
	}

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return v, ErrDecrypt
	}
	return string(plain), nil
}

// EncryptRow returns a copy of row with the schema columns of table encrypted
func (c *Codec) EncryptRow(table string, row domain.Row) (domain.Row, error) {
	out := row.Clone()
	for _, field := range c.schema.Fields(table) {
		v, ok := stringValue(out[field])
		if !ok {
			continue
		}
		enc, err := c.EncryptField(table, field, v)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s.%s: %w", table, field, err)
		}
		out[field] = enc
	}
	return out, nil
}

// DecryptRow returns a copy of row with the schema columns of table decrypted.
// A column that fails to decrypt keeps its stored value and the failure is
// reported in the joined error; the returned row is always usable.
func (c *Codec) DecryptRow(table string, row domain.Row) (domain.Row, error) {
	out := row.Clone()
	var errs []error
	for _, field := range c.schema.Fields(table) {
		v, ok := stringValue(out[field])
		if !ok {
			continue
		}
		plain, err := c.Decrypt(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", table, field, err))
			continue
		}
		out[field] = plain
	}
	return out, errors.Join(errs...)
}

func (c *Codec) seal(nonce []byte, v string) string {
	sealed := c.aead.Seal(nil, nonce, []byte(v), nil)
	return hex.EncodeToString(nonce) + Delimiter + hex.EncodeToString(sealed)
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
