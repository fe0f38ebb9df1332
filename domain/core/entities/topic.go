// Package entities holds the catalog's domain types: topics, the references
// attached to them and the login sessions of readers.
package entities

import "time"

// Topic is a named subject. Its name is the identity.
type Topic struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
