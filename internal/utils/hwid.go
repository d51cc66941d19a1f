package utils

import (
	"github.com/denisbrodbeck/machineid"
)

const hwidAppID = "yagua-launcher"

// HWID is a stable, app-scoped device identifier. The raw machine id never
// leaves the host.
var HWID = func() string {
	id, err := machineid.ProtectedID(hwidAppID)
	if err != nil {
		return "unknown"
	}
	return id[:16]
}()
