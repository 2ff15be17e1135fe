// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"regexp"

	"github.com/google/uuid"
)

// SessionIDLength is the number of UUID characters kept for a session id.
const SessionIDLength = 8

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NewSessionID returns a short random session id. Uniqueness against live
// sessions is enforced by the registry.
func NewSessionID() string {
	return uuid.NewString()[:SessionIDLength]
}

// IsSafeSessionID returns true if the ID is safe for URLs and log fields.
func IsSafeSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}
