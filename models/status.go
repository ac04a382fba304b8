package models

// Status is the order lifecycle state. The graph is linear with Cancelled
// reachable from any non-terminal state:
//
//	Pending -> Preparing -> Ready for Pickup -> Out for Delivery -> Completed
//
// Completed and Cancelled are terminal.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusPreparing      Status = "Preparing"
	StatusReadyForPickup Status = "Ready for Pickup"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusCompleted      Status = "Completed"
	StatusCancelled      Status = "Cancelled"
)

// statusRank orders the linear part of the graph. Cancelled sits outside the
// line and is handled explicitly.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusPreparing:      1,
	StatusReadyForPickup: 2,
	StatusOutForDelivery: 3,
	StatusCompleted:      4,
}

// Valid reports whether s is one of the enumerated statuses. Client-supplied
// strings must pass this before any transition check.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanRestaurantSet reports whether a restaurant admin may move an order from
// current to target. Transitions are strictly forward along the graph and
// stop short of Completed, which only the assigned agent may set; Cancelled
// is allowed from any non-terminal state. Same-state and backward writes are
// rejected.
func CanRestaurantSet(current, target Status) bool {
	if current.Terminal() || !target.Valid() {
		return false
	}
	if target == StatusCancelled {
		return true
	}
	if target == StatusCompleted {
		return false
	}
	return statusRank[target] > statusRank[current]
}

// CanAgentAccept reports whether an agent may take the order out for
// delivery.
func CanAgentAccept(current Status) bool {
	return current == StatusReadyForPickup
}

// CanAgentComplete reports whether an agent may mark the order completed.
// Caller identity (assigned agent only) is checked separately.
func CanAgentComplete(current Status) bool {
	return current == StatusOutForDelivery
}
