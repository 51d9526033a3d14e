package utility

import (
	"strconv"

	"github.com/google/uuid"
)

var fillNamespace = uuid.MustParse("5c1d7a0e-3b7f-4f2e-9a61-0d2f8e4b6c11")

// FillID derives a stable fill identifier from the owning session and the
// session-local fill sequence. Replaying the same session yields the same ids.
func FillID(sessionID string, seq uint64) string {
	return uuid.NewSHA1(fillNamespace, []byte(sessionID+"/"+strconv.FormatUint(seq, 10))).String()
}
