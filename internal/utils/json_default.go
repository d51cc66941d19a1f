//go:build !sonic

package utils

import (
	"github.com/goccy/go-json"
)

var (
	JSONMarshal       = json.Marshal
	JSONUnmarshal     = json.Unmarshal
	JSONMarshalIndent = json.MarshalIndent
)
