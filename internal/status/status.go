package status

// Status is the delivery status of a message.
type Status string

const (
	// Sending covers the whole optimistic window: the message exists locally
	// but the server has not confirmed it yet.
	Sending Status = "sending"
	// Queued is a sub-state of Sending used while the transport is offline.
	// It shares Sending's ordinal so a later confirmation upgrades it normally.
	Queued    Status = "queued"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	// Error is terminal for a send attempt. It is never upgraded away;
	// a resend creates a fresh temporary message instead.
	Error Status = "error"
)

// ordinals defines the forward ordering of delivery states.
// Error is absent on purpose: it is handled outside ordinal comparison.
var ordinals = map[Status]int{
	Sending:   0,
	Queued:    0,
	Sent:      1,
	Delivered: 2,
	Read:      3,
}

// Ordinal returns the position of s in the delivery ordering, or -1 for
// unknown statuses and Error.
func Ordinal(s Status) int {
	ord, ok := ordinals[s]
	if !ok {
		return -1
	}
	return ord
}

// Known reports whether s is one of the defined statuses.
func Known(s Status) bool {
	_, ok := ordinals[s]
	return ok || s == Error
}

// CanUpgrade reports whether a transition from cur to next is a strict
// forward move. Downgrades and repeats are rejected so stale or duplicate
// events are silently dropped. Error is reachable from any non-terminal
// state and never left.
func CanUpgrade(cur, next Status) bool {
	if cur == Error {
		return false
	}
	if next == Error {
		return true
	}
	curOrd, ok := ordinals[cur]
	if !ok {
		return false
	}
	nextOrd, ok := ordinals[next]
	if !ok {
		return false
	}
	return nextOrd > curOrd
}

// Glyph returns the status indicator drawn next to an outgoing message.
func Glyph(s Status) string {
	switch s {
	case Sending:
		return "…"
	case Queued:
		return "⌛"
	case Sent:
		return "✓"
	case Delivered:
		return "✓✓"
	case Read:
		return "✓✓"
	case Error:
		return "!"
	default:
		return ""
	}
}

// Title returns the human-readable tooltip for a status.
func Title(s Status) string {
	switch s {
	case Sending:
		return "Sending"
	case Queued:
		return "Waiting for connection"
	case Sent:
		return "Sent"
	case Delivered:
		return "Delivered"
	case Read:
		return "Read"
	case Error:
		return "Failed to send"
	default:
		return ""
	}
}
