package app

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator issues ticket ids and canonicalizes ids presented by callers.
type IDGenerator interface {
	NewID() (string, error)
	Normalize(id string) string
}

// ShortCodeAlphabet omits O, 0, I and 1 so codes can be read aloud and typed by hand.
const ShortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultShortCodeLength = 6

// ShortCodeGenerator produces human-legible codes such as "K7PX2M".
// Uniqueness is enforced by the store; callers retry on a duplicate insert.
type ShortCodeGenerator struct {
	Length int
}

// NewShortCodeGenerator returns a generator of 6-character codes.
func NewShortCodeGenerator() ShortCodeGenerator {
	return ShortCodeGenerator{Length: defaultShortCodeLength}
}

func (g ShortCodeGenerator) NewID() (string, error) {
	n := g.Length
	if n <= 0 {
		n = defaultShortCodeLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// len(ShortCodeAlphabet) is 32, so the low five bits select uniformly.
	for i, b := range buf {
		buf[i] = ShortCodeAlphabet[b&0x1f]
	}
	return string(buf), nil
}

func (ShortCodeGenerator) Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// UUIDGenerator issues random RFC 4122 ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

func (UUIDGenerator) Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

const (
	IDStyleShort = "short"
	IDStyleUUID  = "uuid"
)

// NewIDGenerator selects a generator by style name.
func NewIDGenerator(style string) (IDGenerator, error) {
	switch style {
	case "", IDStyleShort:
		return NewShortCodeGenerator(), nil
	case IDStyleUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id style %q", style)
	}
}
