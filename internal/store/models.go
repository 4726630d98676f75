package store

import "time"

// User is the authenticated-user record the identity collaborator
// hands out: an opaque uid plus a display snapshot.
type User struct {
	UID          string
	DisplayName  string
	PhotoURL     string
	PasswordHash string
	CreatedAt    time.Time
}
