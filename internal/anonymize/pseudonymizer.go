package anonymize

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// MinSecretLen is the minimum accepted length of the anonymization secret.
// Anything shorter and the keyed hash no longer provides a meaningful
// anonymity guarantee, so construction fails instead of degrading silently.
const MinSecretLen = 32

var ErrUnconfigured = errors.New("anonymization secret missing or too short")

// Kind selects which input tuple is hashed.
type Kind string

const (
	// KindSubmitter binds (submitterID, tenantID). Used for rate accounting
	// and the evidence-relay mapping key.
	KindSubmitter Kind = "submitter"

	// KindDuplicate binds (submitterID, tenantID, normalized target).
	// A collision on this value is the duplicate-rejection signal.
	KindDuplicate Kind = "duplicate"
)

// Pseudonymizer produces deterministic, non-invertible fingerprints with a
// keyed BLAKE2b hash. Changing the secret invalidates all prior fingerprints;
// that is an operational consequence, not a bug.
type Pseudonymizer struct {
	secret []byte
}

// New returns an error if the secret is absent or shorter than MinSecretLen.
func New(secret string) (*Pseudonymizer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrUnconfigured
	}
	return &Pseudonymizer{secret: []byte(secret)}, nil
}

// Submitter returns the rate-accounting fingerprint for (submitterID, tenantID).
func (p *Pseudonymizer) Submitter(submitterID, tenantID string) (string, error) {
	return p.fingerprint(KindSubmitter, submitterID, tenantID)
}

// Duplicate returns the dedup fingerprint for (submitterID, tenantID, target).
// The target is lowercased and trimmed so "BadUser" and "baduser" collide.
func (p *Pseudonymizer) Duplicate(submitterID, tenantID, target string) (string, error) {
	return p.fingerprint(KindDuplicate, submitterID, tenantID, NormalizeTarget(target))
}

func (p *Pseudonymizer) fingerprint(kind Kind, parts ...string) (string, error) {
	if len(p.secret) < MinSecretLen {
		return "", ErrUnconfigured
	}
	key := p.secret
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", ErrUnconfigured
	}
	h.Write([]byte(string(kind)))
	for _, part := range parts {
		h.Write([]byte(":"))
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeTarget canonicalizes a target identifier for dedup purposes.
func NormalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
