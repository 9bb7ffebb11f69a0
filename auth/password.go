// Package auth provides the credential primitives of the forum: salted,
// iterated password hashes and stateless signed session tokens.
package auth

import (
	"strings"

	"github.com/jmcleod/opweb/internal/util"
)

const passwordSaltBytes = 16

// HashPassword returns "salt:hash" where salt is 16 random bytes in hex and
// hash is PBKDF2-HMAC-SHA512 (100 000 iterations, 64 bytes) in hex. The hex
// salt text itself is the PBKDF2 salt, matching previously stored hashes.
func HashPassword(password string) (string, error) {
	salt, err := util.RandomHex(passwordSaltBytes)
	if err != nil {
		return "", err
	}
	key := util.DerivePBKDF2Key(password, []byte(salt), util.DefaultPBKDF2Params())
	defer util.WipeBytes(key)
	return salt + ":" + util.HexEncode(key), nil
}

// VerifyPassword reports whether password matches a value produced by
// HashPassword. Malformed stored values never match.
func VerifyPassword(password, stored string) bool {
	salt, hash, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || hash == "" {
		return false
	}
	expected, err := util.HexDecode(hash)
	if err != nil {
		return false
	}
	params := util.DefaultPBKDF2Params()
	if len(expected) != params.KeyLen {
		return false
	}
	return util.ComparePBKDF2Key(password, []byte(salt), params, expected)
}
