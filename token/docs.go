// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package token defines how bearer tokens are acquired: a Provider returns a
// Token for a named resource. A Cache in front of a Provider keeps one token
// per resource until it is about to expire or is invalidated.
package token
