package domain

// Delivery status tags.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

func statusRank(s string) int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// CanAdvanceStatus reports whether a message in status from may move to
// status to. The happy path only moves forward (sent, delivered, read).
// Failed is reachable from sent or delivered and is terminal.
func CanAdvanceStatus(from, to string) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return from == StatusSent || from == StatusDelivered
	}
	rt := statusRank(to)
	return rt > 0 && rt > statusRank(from)
}

// IsDelivered reports whether status means the message reached the device.
func IsDelivered(status string) bool {
	return status == StatusDelivered || status == StatusRead
}
