package schedule

// State is the valve state machine's current mode.
type State string

const (
	AutoOpen       State = "AUTO_OPEN"
	AutoClosed     State = "AUTO_CLOSED"
	OverrideOpen   State = "OVERRIDE_OPEN"
	OverrideClosed State = "OVERRIDE_CLOSED"
)

// Action is the single corrective step a tick may demand of the actuator.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionClose
)

// Valve tracks the logical valve position plus the manual-override latch.
// An override records the blocked/unblocked membership at the moment it was
// issued; automatic control stays suppressed until that membership flips,
// at which point the override clears and at most one corrective action fires.
type Valve struct {
	open bool

	override        bool
	overrideBlocked bool // blocked-window membership when the override was issued
}

// NewValve creates a valve in automatic mode with the given position.
func NewValve(open bool) *Valve {
	return &Valve{open: open}
}

// Open reports the logical valve position.
func (v *Valve) Open() bool { return v.open }

// Overridden reports whether a manual override is holding.
func (v *Valve) Overridden() bool { return v.override }

// State returns the state-machine mode.
func (v *Valve) State() State {
	switch {
	case v.override && v.open:
		return OverrideOpen
	case v.override:
		return OverrideClosed
	case v.open:
		return AutoOpen
	default:
		return AutoClosed
	}
}

// Evaluate runs one tick of valve control against the current blocked-window
// membership and returns the action the actuator must take, if any.
// Calling it again with the same membership is idempotent.
func (v *Valve) Evaluate(blocked bool) Action {
	if v.override {
		if blocked == v.overrideBlocked {
			// The condition that justified the override still holds.
			return ActionNone
		}
		// Window membership flipped: release the override and take at
		// most one corrective action, then resume automatic control.
		v.override = false
	}

	if blocked && v.open {
		v.open = false
		return ActionClose
	}
	if !blocked && !v.open {
		v.open = true
		return ActionOpen
	}
	return ActionNone
}

// ForceOpen enters override mode with the valve open, capturing the current
// blocked membership. Returns ActionOpen if the position actually changed.
func (v *Valve) ForceOpen(blocked bool) Action {
	v.override = true
	v.overrideBlocked = blocked
	if v.open {
		return ActionNone
	}
	v.open = true
	return ActionOpen
}

// ForceClose enters override mode with the valve closed.
func (v *Valve) ForceClose(blocked bool) Action {
	v.override = true
	v.overrideBlocked = blocked
	if !v.open {
		return ActionNone
	}
	v.open = false
	return ActionClose
}
