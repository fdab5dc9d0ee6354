package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
)

// CommitClaims are the fields bound into an upload commit URL.
type CommitClaims struct {
	UserID    uint
	SessionID string
	FolderID  uint
	Name      string
	Size      int64
}

// SignCommit returns the hex HMAC-SHA256 of claims. Every field is written
// with a length prefix so two different tuples never hash the same input.
func SignCommit(secret []byte, claims CommitClaims) string {
	mac := hmac.New(sha256.New, secret)
	writeField(mac, strconv.FormatUint(uint64(claims.UserID), 10))
	writeField(mac, claims.SessionID)
	writeField(mac, strconv.FormatUint(uint64(claims.FolderID), 10))
	writeField(mac, claims.Name)
	writeField(mac, strconv.FormatInt(claims.Size, 10))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCommit compares signature against claims in constant time.
func VerifyCommit(secret []byte, claims CommitClaims, signature string) bool {
	expected := SignCommit(secret, claims)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeField(h hash.Hash, value string) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(value)))
	h.Write(prefix[:])
	h.Write([]byte(value))
}
