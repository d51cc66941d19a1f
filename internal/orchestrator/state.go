package orchestrator

import (
	"errors"
	"fmt"
)

type State string

const (
	Idle             State = "idle"
	CheckingManifest State = "checking_manifest"
	Planning         State = "planning"
	UpToDate         State = "up_to_date"
	UpdateNeeded     State = "update_needed"
	Updating         State = "updating"
	Verified         State = "verified"
	ReadyToLaunch    State = "ready_to_launch"
	Launching        State = "launching"
	Done             State = "done"
	Failed           State = "failed"
)

var ErrInvalidTransition = errors.New("orchestrator: invalid state transition")

var transitions = map[State][]State{
	Idle:             {CheckingManifest},
	CheckingManifest: {Planning, ReadyToLaunch, Done},
	Planning:         {UpToDate, UpdateNeeded},
	UpToDate:         {ReadyToLaunch, Done},
	UpdateNeeded:     {Updating},
	Updating:         {Verified},
	Verified:         {ReadyToLaunch, Done},
	ReadyToLaunch:    {Launching},
	Launching:        {Done},
	Done:             {Idle},
	Failed:           {Idle},
}

// Terminal states end a run.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// CanTransition reports whether from -> to is allowed. Failed is reachable from
// every non-terminal state.
func CanTransition(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
