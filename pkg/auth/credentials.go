// Package auth supplies the bearer credential used to open the notification
// connection. Sources are asked for a token at every connect attempt and
// must not cache it, so a rotated token is picked up on the next reconnect.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialSource returns the current bearer token. An empty token with a
// nil error means the user is not authenticated.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts a function to CredentialSource.
type Func func(ctx context.Context) (string, error)

func (f Func) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Env reads the token from an environment variable on every call.
type Env string

func (e Env) Token(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(e))), nil
}

// File reads the token from a file on every call. A missing file means no
// credential; any other read error is returned.
type File string

func (f File) Token(context.Context) (string, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// None never yields a credential.
var None CredentialSource = Static("")
