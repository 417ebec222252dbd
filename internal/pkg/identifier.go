package pkg

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateRoomID returns a short id suitable for sharing with clients.
func GenerateRoomID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}

// GenerateNewSessionID returns a full-length unique id for users and
// sessions.
func GenerateNewSessionID() string {
	return uuid.NewString()
}
