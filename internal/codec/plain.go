package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Plain stores the list as a raw JSON array.
type Plain struct{}

func (Plain) Name() string { return NamePlain }

func (Plain) Encode(tickets []domain.Ticket) (string, error) {
	data, err := marshalTickets(tickets)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (Plain) Decode(raw string) ([]domain.Ticket, error) {
	if raw == "" {
		return []domain.Ticket{}, nil
	}
	return unmarshalTickets([]byte(raw))
}

// Obfuscated stores Base64(JSON). It hides nothing from anyone who looks.
type Obfuscated struct{}

func (Obfuscated) Name() string { return NameObfuscated }

func (Obfuscated) Encode(tickets []domain.Ticket) (string, error) {
	data, err := marshalTickets(tickets)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (Obfuscated) Decode(raw string) ([]domain.Ticket, error) {
	if raw == "" {
		return []domain.Ticket{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return unmarshalTickets(data)
}
