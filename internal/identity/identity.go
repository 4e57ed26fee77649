// Package identity provides Ed25519 keypairs and canonical-JSON signing
// shared by the gossip overlay (C8) and the blacklist ledger (C14).
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
)

// Identity is a node's signing keypair plus its opaque peer id.
type Identity struct {
	PeerID     string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// New generates a fresh Ed25519 keypair for the given peer id.
func New(peerID string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{PeerID: peerID, PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs arbitrary bytes with the identity's private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

// PublicKeyPEM renders the public key as an SPKI PEM block, matching the
// `public_key` field shape used by peer records (spec §3).
func (id *Identity) PublicKeyPEM() (string, error) {
	return MarshalPublicKeyPEM(id.PublicKey)
}

// MarshalPublicKeyPEM renders an Ed25519 public key as SPKI PEM.
func MarshalPublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("identity: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM parses an SPKI PEM block back into an Ed25519 public key.
func ParsePublicKeyPEM(s string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("identity: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("identity: not an Ed25519 public key")
	}
	return pub, nil
}

// Verify checks a signature against a public key and payload.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// EncodeSignature base64-encodes a raw signature for wire transport.
func EncodeSignature(sig []byte) string { return base64.StdEncoding.EncodeToString(sig) }

// DecodeSignature reverses EncodeSignature.
func DecodeSignature(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// Canonical renders v as canonical JSON: object keys sorted
// lexicographically, numbers without trailing zeros (Go's json.Marshal
// already emits minimal number representations), matching the
// cross-platform canonicalization rule in spec §9 that every
// implementation must share for signatures to verify.
func Canonical(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return marshalSorted(normalized)
}

// normalize round-trips v through JSON so struct field tags, omitempty,
// and custom marshalers are applied before we re-sort the resulting map.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal for canonicalization: %w", err)
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("identity: decode for canonicalization: %w", err)
	}
	return generic, nil
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}
