package api

import "github.com/google/uuid"

// NewItemID returns a fresh random (version 4) UUID used to tag the
// output item a progress event belongs to.
func NewItemID() string {
	return uuid.NewString()
}
