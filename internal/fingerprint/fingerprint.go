// Package fingerprint hashes the ordered (name, fieldType) schema of a file.
//
// The canonical byte form is a sequence of length-prefixed fields:
//
//	[filename]? (name, fieldType)*
//
// Each field is encoded as a big-endian uint32 length followed by its UTF-8
// bytes, so no choice of names can make two different schemas encode alike.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/gridlake-io/gridlake/internal/model"
)

// Hash is a hex encoded SHA-256 digest.
type Hash string

const (
	scopeFile   = "file"
	scopeSchema = "schema"
)

// Compute returns the fingerprint of stats. When scopeToFilename is true the
// file name is folded into the hash.
func Compute(stats model.FileStats, scopeToFilename bool) Hash {
	h := sha256.New()
	if scopeToFilename {
		writeField(h, scopeFile)
		writeField(h, stats.FileName)
	} else {
		writeField(h, scopeSchema)
	}
	for _, c := range stats.Columns {
		writeField(h, c.Name)
		writeField(h, string(c.FieldType))
	}
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// Pair holds both granularities of a file's fingerprint.
type Pair struct {
	FileColumnsHash Hash
	ColumnsHash     Hash
}

// Of computes the fingerprint pair of stats.
func Of(stats model.FileStats) Pair {
	return Pair{
		FileColumnsHash: Compute(stats, true),
		ColumnsHash:     Compute(stats, false),
	}
}

func writeField(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
