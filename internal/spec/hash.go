package spec

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
)

// Hash returns a cheap bucket key for s built from summary fields only:
// the schema tag, info scalars, and per-command entry counts. Equal specs
// always hash equal; unequal specs may collide, so callers must confirm with Equal.
func Hash(s *Spec) uint64 {
	if s == nil {
		return 0
	}
	h := blake3.New()
	write := func(fields ...string) {
		for _, f := range fields {
			_, _ = h.Write([]byte(f))
			_, _ = h.Write([]byte{0})
		}
	}

	write(s.OpenCLI, s.Info.Title, s.Info.Version, s.Info.Description)
	write(strconv.Itoa(len(s.Options)), strconv.Itoa(s.Commands.Len()))
	for _, name := range s.Commands.sortedNames() {
		c := s.Commands.byKey[name]
		write(
			name,
			strconv.Itoa(len(c.Arguments)),
			strconv.Itoa(len(c.Options)),
			strconv.Itoa(c.Commands.Len()),
		)
	}

	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Canonical returns the canonical JSON encoding of s: command mappings with
// sorted keys, lists in declared order. Equal specs have identical encodings.
func Canonical(s *Spec) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("spec is nil")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode canonical spec: %w", err)
	}
	return data, nil
}

// Digest returns the hex BLAKE3 digest of the canonical encoding.
func Digest(s *Spec) (string, error) {
	data, err := Canonical(s)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
