package util

import (
	"crypto/sha512"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

type PBKDF2Params struct {
	Iterations int
	KeyLen     int
}

func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: 100000,
		KeyLen:     64,
	}
}

// DerivePBKDF2Key runs PBKDF2-HMAC-SHA512 over the NFC-normalized secret.
func DerivePBKDF2Key(secret string, salt []byte, params PBKDF2Params) []byte {
	return pbkdf2.Key([]byte(Normalize(secret)), salt, params.Iterations, params.KeyLen, sha512.New)
}

func ComparePBKDF2Key(secret string, salt []byte, params PBKDF2Params, expectedKey []byte) bool {
	key := DerivePBKDF2Key(secret, salt, params)
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1
}
