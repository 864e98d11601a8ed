package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

const (
	DefaultSalt          = "l13l_%223$"
	DefaultKDFIterations = 100000
	keySize              = 32
)

// Encrypted seals the JSON list with AES-256-GCM. The key is derived from a
// passphrase and a fixed salt, so anyone holding the deployment config can
// read the data back.
type Encrypted struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewEncrypted derives the key once and prepares the AEAD.
func NewEncrypted(passphrase, salt string, iterations int) (*Encrypted, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrCrypto)
	}
	if salt == "" {
		salt = DefaultSalt
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create GCM: %v", ErrCrypto, err)
	}
	return &Encrypted{aead: aead, rand: rand.Reader}, nil
}

func (e *Encrypted) Name() string { return NameEncrypted }

// Encode returns Base64(nonce || ciphertext) with a fresh 96-bit nonce.
func (e *Encrypted) Encode(tickets []domain.Ticket) (string, error) {
	plaintext, err := marshalTickets(tickets)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

var errTooShort = errors.New("ciphertext too short")

func (e *Encrypted) Decode(raw string) ([]domain.Ticket, error) {
	if raw == "" {
		return []domain.Ticket{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrCrypto, err)
	}
	ns := e.aead.NonceSize()
	if len(data) < ns+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, errTooShort)
	}
	plaintext, err := e.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrCrypto, err)
	}
	return unmarshalTickets(plaintext)
}
