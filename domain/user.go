// Package domain contains core concepts of the messaging system.
// Entities here carry no runtime, storage, or transport logic.
package domain

// User is the external identity referenced by the core. Authentication and
// profile ownership belong to the identity provider; the core only carries
// the id and the display name shown on presence channels.
type User struct {
	ID          string
	DisplayName string
}
