// Package reconcile computes the minimal set of changes that brings a local
// installation to a remote manifest.
package reconcile

import (
	"fmt"
	"strings"
)

type Action int

const (
	Add Action = iota
	Replace
	Patch
	Delete
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Patch:
		return "patch"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "add":
		*a = Add
	case "replace":
		*a = Replace
	case "patch":
		*a = Patch
	case "delete":
		*a = Delete
	default:
		return fmt.Errorf("reconcile: unknown action %q", text)
	}
	return nil
}
