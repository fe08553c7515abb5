package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainBundle      = "dustrun/bundle/v1"
	DomainConstraints = "dustrun/constraints/v1"
	DomainTrace       = "dustrun/trace/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the domain-separated SHA-256 of v's canonical JSON.
// Returns error if v cannot be canonically marshaled.
func Digest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// DigestExact is Digest over MarshalCanonicalExact: strings are hashed
// byte for byte.
func DigestExact(domain string, v any) (string, error) {
	canonical, err := MarshalCanonicalExact(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ConstraintDigest identifies a constraint set independently of how it is
// solved. Predicates are hashed in declaration order.
func ConstraintDigest(predicates []string) string {
	if predicates == nil {
		predicates = []string{}
	}
	// A []string always marshals canonically.
	d, err := Digest(DomainConstraints, predicates)
	if err != nil {
		panic(err)
	}
	return d
}

// TraceDigest hashes already-encoded trace bytes. Trace encoding is
// byte-stable, so the bytes are hashed as-is.
func TraceDigest(trace []byte) string {
	return hashWithDomain(DomainTrace, trace)
}
