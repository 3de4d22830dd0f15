// Package spec models a declarative command-line program description.
//
// A spec document (JSON or YAML) declares a tree of commands, each with
// positional arguments, options, exit codes and examples. Parse builds an
// immutable Spec from it; the rest of the system only reads the tree.
//
// Change detection:
//   - Equal compares two specs structurally. Mappings compare by key set
//     regardless of declaration order; lists compare position by position.
//   - Hash is a cheap bucket key over summary fields. It may collide.
//   - Digest is a BLAKE3 digest of the canonical JSON encoding.
package spec
