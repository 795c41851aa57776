// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package id generates the random identifiers used for session participants
// and default session record keys.
package id

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// Length is the number of random characters in an id, not counting the
// optional prefix.
const Length = 10

// New generates an id with an optional prefix.
func New(optionalPrefix string) (string, error) {
	u, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id := strings.ReplaceAll(u, "-", "")[:Length]
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}

// NewUUID generates a full random uuid, suitable as a session record key
// shared between participants.
func NewUUID() (string, error) {
	u, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate uuid: %w", err)
	}
	return u, nil
}
