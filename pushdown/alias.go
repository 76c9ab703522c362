package pushdown

import (
	"strings"

	"github.com/google/uuid"
)

// AliasFunc returns a fresh SQL alias for the derived table of one query.
type AliasFunc func() string

// RandomAlias returns "q_" followed by a dashless random UUID.
func RandomAlias() string {
	return "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
