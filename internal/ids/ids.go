package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity prefixes.
const (
	Organization = "org"
	Branch       = "branch"
	User         = "user"
	Invite       = "invite"
	Lead         = "lead"
	Profile      = "profile"
	Snapshot     = "snap"
	Agent        = "agent"
	Prompt       = "prompt"
	Call         = "call"
	Event        = "evt"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a sortable identifier of the form "<prefix>_<ulid>". An empty
// prefix yields the bare ULID.
func New(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	entropyMu.Unlock()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
