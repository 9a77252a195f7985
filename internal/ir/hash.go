package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without colliding with old digests.
const (
	DomainOutput = "cognos/output/v1"
	DomainValue  = "cognos/value/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OutputDigest hashes the captured output of a run together with its
// final value. Two runs with identical output and result produce the same
// digest; this is what replay determinism compares.
func OutputDigest(output []string, result Value) (string, error) {
	lines := make([]Value, len(output))
	for i, line := range output {
		lines[i] = String(line)
	}
	if result == nil {
		result = None{}
	}
	doc := NewMap(
		P("output", NewList(lines...)),
		P("result", result),
	)
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("OutputDigest: %w", err)
	}
	return hashWithDomain(DomainOutput, canonical), nil
}

// ValueDigest hashes a single value.
func ValueDigest(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueDigest: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}
