package update

import (
	"fmt"

	"github.com/yagualauncher/yagua/internal/reconcile"
)

// PartialUpdateError means the commit phase stopped part way. Entries before
// Remaining are live and recorded in the local state; Remaining can be passed
// back to Execute, which reuses whatever is still staged.
type PartialUpdateError struct {
	Remaining reconcile.UpdatePlan
	Err       error
}

func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("update: partial update, %d entries remaining: %v", len(e.Remaining), e.Err)
}

func (e *PartialUpdateError) Unwrap() error { return e.Err }

// EntryError ties a staging failure to its path.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("update: %s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
