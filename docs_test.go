// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package capsession_test

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/capsession/httpclient"
	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/capsession/store/file"
)

func Example_session() {
	ctx := context.Background()

	// Create a provider of access tokens
	pc, err := oidc.NewConfig(
		"https://your-issuer.com/",
		"your_client_id",
		"your_client_secret",
	)
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// Join, or start, the session shared by every process using the
	// directory
	st, err := file.New("/var/run/your-app/sessions")
	if err != nil {
		// handle error
	}
	sc, err := session.NewConfig("your-app-session", session.WithTimeout(15*time.Minute))
	if err != nil {
		// handle error
	}
	s, err := session.New(ctx, sc,
		session.WithStore(st),
		session.WithLogoutFunc(func(cause error) {
			fmt.Println("logged out:", cause)
		}),
	)
	if err != nil {
		// handle error
	}
	defer s.Close()

	// Create a client attaching tokens for the API and renewing the session
	c, err := httpclient.NewClient("https://api.your-app.com/",
		httpclient.WithTokenProvider(p, "https://api.your-app.com"),
		httpclient.WithSession(s),
	)
	if err != nil {
		// handle error
	}
	resp, err := c.Get(ctx, "todos")
	if err != nil {
		// handle error
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Log out of every participant
	if err := s.Logout(ctx); err != nil {
		// handle error
	}
}
