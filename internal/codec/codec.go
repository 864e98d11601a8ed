// Package codec maps a ticket list to and from the single string value a
// storage backend holds.
//
// Three strategies exist: plain JSON, Base64-wrapped JSON and AES-GCM
// encrypted JSON. None of them is a confidentiality boundary. The encrypted
// variant derives its key from a passphrase that ships with the same
// deployment that stores the ciphertext, so it only hides data from a casual
// reader of the storage medium.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

var (
	// ErrDecode marks a persisted payload that could not be turned back into tickets.
	ErrDecode = errors.New("decode tickets")
	// ErrCrypto marks key-derivation or decrypt failures. It matches ErrDecode.
	ErrCrypto = fmt.Errorf("%w: crypto", ErrDecode)
	// ErrUnknownCodec is returned by New for an unsupported name.
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec converts a ticket list to a storage-native string and back.
type Codec interface {
	Name() string
	Encode(tickets []domain.Ticket) (string, error)
	Decode(raw string) ([]domain.Ticket, error)
}

const (
	NamePlain      = "plain"
	NameObfuscated = "obfuscated"
	NameEncrypted  = "encrypted"
)

// Options configures codec construction.
type Options struct {
	Passphrase    string
	Salt          string
	KDFIterations int
}

// New returns the codec registered under name.
func New(name string, opts Options) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NamePlain:
		return Plain{}, nil
	case NameObfuscated:
		return Obfuscated{}, nil
	case NameEncrypted:
		enc, err := NewEncrypted(opts.Passphrase, opts.Salt, opts.KDFIterations)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func marshalTickets(tickets []domain.Ticket) ([]byte, error) {
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return json.Marshal(tickets)
}

func unmarshalTickets(data []byte) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}
