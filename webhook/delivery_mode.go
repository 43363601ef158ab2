package webhook

import "fmt"

/* DeliveryMode selects how DeliverWebhook hands an item to the queue
 * Async enqueues and returns, the runner attempts it on its next pass
 * Sync enqueues and attempts the item in the caller's goroutine
 */
type DeliveryMode int

const (
	Async DeliveryMode = iota + 1
	Sync
)

// String returns the string representation of the delivery mode
func (d DeliveryMode) String() string {
	switch d {
	case Async:
		return "async"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// NewDeliveryMode creates a DeliveryMode from a string
func NewDeliveryMode(s string) DeliveryMode {
	switch s {
	case "sync":
		return Sync
	default:
		return Async
	}
}

// Validate checks if the delivery mode is valid
func (d DeliveryMode) Validate() error {
	if d != Async && d != Sync {
		return fmt.Errorf("invalid delivery mode: %d", d)
	}
	return nil
}

// DeliverOptions tunes a single DeliverWebhook call
// Zero values fall back to Async, the queue's default max retries and priority 0
// ItemID lets the caller record against the item before it exists, one is generated when empty
type DeliverOptions struct {
	Mode       DeliveryMode
	MaxRetries int
	Priority   int
	ItemID     string
}
