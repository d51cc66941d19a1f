package update

import "fmt"

// EntryState tracks one plan entry through an execution:
// Pending -> Downloading -> Verifying -> Committed or Failed.
type EntryState int

const (
	Pending EntryState = iota
	Downloading
	Verifying
	Committed
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Verifying:
		return "verifying"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
