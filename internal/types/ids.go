// internal/types/ids.go
package types

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// MinSessionIDLength is the shortest runtimeSessionId AgentCore accepts.
const MinSessionIDLength = 33

// SessionID scopes a single Agent Runtime invocation. One is minted per
// bridged message and never reused.
type SessionID string

// NewSessionID builds "slack-<channel>-<user>-<32 hex digits>". The random
// suffix alone keeps the result above MinSessionIDLength.
func NewSessionID(channel, user string) SessionID {
	u := uuid.New()
	var b strings.Builder
	b.Grow(len("slack-") + len(channel) + len(user) + 2 + 32)
	b.WriteString("slack-")
	b.WriteString(channel)
	b.WriteByte('-')
	b.WriteString(user)
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString(u[:]))
	return SessionID(b.String())
}

func (id SessionID) String() string { return string(id) }
