// Package identity turns free-text command arguments into canonical E.164 numbers.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NameLookup resolves display names to numbers.
type NameLookup interface {
	LookupName(ctx context.Context, name string) (string, bool, error)
}

// Resolution is either a canonical number or the message explaining why the
// argument did not resolve.
type Resolution struct {
	Number  string
	Invalid string
}

func (r Resolution) OK() bool { return r.Invalid == "" }

type Resolver struct {
	names NameLookup
}

func NewResolver(names NameLookup) *Resolver {
	return &Resolver{names: names}
}

// Resolve tries display names first and falls back to parsing token as an
// international phone number.
func (r *Resolver) Resolve(ctx context.Context, token string) (Resolution, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Resolution{Invalid: invalidMessage(token)}, nil
	}
	number, ok, err := r.names.LookupName(ctx, token)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %q: %w", token, err)
	}
	if ok {
		return Resolution{Number: number}, nil
	}
	if canonical, ok := Canonical(token); ok {
		return Resolution{Number: canonical}, nil
	}
	return Resolution{Invalid: invalidMessage(token)}, nil
}

// Canonical parses raw as an international number and formats it as E.164.
func Canonical(raw string) (string, bool) {
	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

func invalidMessage(token string) string {
	return fmt.Sprintf("%s doesn't look a valid number or user. did you include the country code?", token)
}
