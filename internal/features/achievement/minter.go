package achievement

import (
	"context"
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// KeccakMinter derives a deterministic token id for an unlocked
// achievement, so re-minting the same unlock yields the same id.
type KeccakMinter struct{}

func (KeccakMinter) Mint(_ context.Context, userID int64, def Definition) (string, error) {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("achievement:"))
	h.Write([]byte(strconv.FormatInt(userID, 10)))
	h.Write([]byte{':'})
	h.Write([]byte(def.Type))
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}
