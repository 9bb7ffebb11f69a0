package storage

import (
	"bytes"
	"fmt"

	"github.com/jmcleod/opweb/internal/util"
)

// Magic is the fixed signature that starts every sealed document.
var Magic = []byte("OPWEB1")

const (
	magicSize  = 6
	headerSize = magicSize + util.GCMNonceSize + util.GCMTagSize
)

// Envelope is the binary on-disk unit:
//
//	[6-byte magic][12-byte nonce][16-byte tag][ciphertext]
type Envelope struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// HasMagic reports whether data starts with the envelope signature.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}

// Seal encrypts plaintext with AES-256-GCM under key and a fresh nonce. The
// signature is bound as associated data.
func Seal(key, plaintext []byte) (*Envelope, error) {
	nonce, tag, ciphertext, err := util.SealAESGCM(plaintext, key, Magic)
	if err != nil {
		return nil, err
	}
	return &Envelope{Nonce: nonce, Tag: tag, Ciphertext: ciphertext}, nil
}

// Open decrypts the envelope. Authentication failures wrap ErrCorrupt.
func Open(key []byte, env *Envelope) ([]byte, error) {
	plaintext, err := util.OpenAESGCM(env.Nonce, env.Tag, env.Ciphertext, key, Magic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}

// Marshal returns the binary form of the envelope.
func (e *Envelope) Marshal() []byte {
	out := make([]byte, 0, headerSize+len(e.Ciphertext))
	out = append(out, Magic...)
	out = append(out, e.Nonce...)
	out = append(out, e.Tag...)
	out = append(out, e.Ciphertext...)
	return out
}

// UnmarshalEnvelope parses the binary form. The returned envelope aliases
// data.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	if !HasMagic(data) {
		return nil, fmt.Errorf("%w: bad signature", ErrCorrupt)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated envelope (%d bytes)", ErrCorrupt, len(data))
	}
	rest := data[magicSize:]
	return &Envelope{
		Nonce:      rest[:util.GCMNonceSize],
		Tag:        rest[util.GCMNonceSize:headerSize-magicSize],
		Ciphertext: rest[headerSize-magicSize:],
	}, nil
}
