package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// tempUserNamespace seeds deterministic temp-user ids. Changing it would
// orphan every existing temporary identity.
var tempUserNamespace = uuid.MustParse("8a9c1f6e-3b72-4d1a-9f05-2c64d0c0a7e1")

// Hash returns the hex sha256 of a raw magic-link token. Raw tokens are
// never stored or compared; every lookup goes through this.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// TempUserID derives the temporary-user id for a token hash. The
// derivation is deterministic so concurrent first visits for the same
// link converge on one record instead of racing to create two.
func TempUserID(tokenHash string) string {
	return uuid.NewSHA1(tempUserNamespace, []byte(tokenHash)).String()
}
