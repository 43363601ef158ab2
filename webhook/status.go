package webhook

import "fmt"

/* DeliveryStatus represents the outcome recorded for a delivery
 * Pending deliveries are written at trigger time, the queue records Success or Failed per attempt
 */
type DeliveryStatus int

const (
	Pending DeliveryStatus = iota + 1
	Success
	Failed
)

// String returns the string representation of the status
func (s DeliveryStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewDeliveryStatus creates a DeliveryStatus from a string
// Unknown strings map to the zero value, which Validate rejects
func NewDeliveryStatus(str string) DeliveryStatus {
	switch str {
	case "pending":
		return Pending
	case "success":
		return Success
	case "failed":
		return Failed
	default:
		return 0
	}
}

// Validate checks if the status is valid
func (s DeliveryStatus) Validate() error {
	if s < Pending || s > Failed {
		return fmt.Errorf("invalid delivery status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s DeliveryStatus) IsFinal() bool {
	return s == Success || s == Failed
}
