//go:build sonic

package utils

import (
	"github.com/bytedance/sonic"
)

var (
	JSONMarshal       = sonic.ConfigStd.Marshal
	JSONUnmarshal     = sonic.ConfigStd.Unmarshal
	JSONMarshalIndent = sonic.ConfigStd.MarshalIndent
)
