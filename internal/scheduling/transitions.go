package scheduling

// Action is a lifecycle operation applied to an appointment.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "no_show"
)

func (a Action) Valid() bool {
	switch a {
	case ActionConfirm, ActionStart, ActionComplete, ActionCancel, ActionNoShow:
		return true
	}
	return false
}

// targets maps each action to the status it produces.
var targets = map[Action]Status{
	ActionConfirm:  StatusConfirmed,
	ActionStart:    StatusInProgress,
	ActionComplete: StatusCompleted,
	ActionCancel:   StatusCancelled,
	ActionNoShow:   StatusNoShow,
}

// allowedFrom lists the statuses each action may leave. The start step is
// optional: complete also accepts confirmed directly.
var allowedFrom = map[Action][]Status{
	ActionConfirm:  {StatusScheduled},
	ActionStart:    {StatusConfirmed},
	ActionComplete: {StatusConfirmed, StatusInProgress},
	ActionCancel:   {StatusScheduled, StatusConfirmed, StatusInProgress},
	ActionNoShow:   {StatusScheduled, StatusConfirmed},
}

// NextStatus resolves the status an action produces from the given state,
// rejecting illegal transitions instead of silently applying them.
func NextStatus(from Status, action Action) (Status, error) {
	for _, s := range allowedFrom[action] {
		if s == from {
			return targets[action], nil
		}
	}
	return "", &TransitionError{From: from, Action: action}
}
