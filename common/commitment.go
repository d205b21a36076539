package common

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cometbft/cometbft/crypto/tmhash"
)

// CommitHash computes the commitment a voter submits during the commit phase.
// Each field is prefixed with its big endian length so that no two distinct
// (value, salt, voter) triples share an encoding.
func CommitHash(value, salt, voterID string) string {
	return hex.EncodeToString(tmhash.Sum(encodeCommitment(value, salt, voterID)))
}

func encodeCommitment(fields ...string) []byte {
	size := 0
	for _, f := range fields {
		size += 8 + len(f)
	}
	buf := make([]byte, 0, size)
	for _, f := range fields {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(f)))
		buf = append(buf, f...)
	}
	return buf
}

// NormalizeCommitHash lowercases a hex hash and checks its length.
func NormalizeCommitHash(hash string) (string, error) {
	hash = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != tmhash.Size {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommitHash, hash)
	}
	return hash, nil
}

// VerifyReveal reports whether value and salt open the stored commitment.
func VerifyReveal(commitHash, value, salt, voterID string) bool {
	return subtle.ConstantTimeCompare([]byte(CommitHash(value, salt, voterID)), []byte(commitHash)) == 1
}
