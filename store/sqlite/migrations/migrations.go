// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package migrations embeds the schema migrations for the sqlite store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
