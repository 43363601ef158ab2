package payload

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Wildcard subscribes a webhook to every event
const Wildcard = "*"

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Payload is the envelope delivered to every destination of a trigger
 * One instance is shared by all webhooks notified for a single trigger call
 * The signature is computed per destination and never stored here
 */
type Payload struct {
	Event          string
	Data           json.RawMessage
	Timestamp      time.Time
	IdempotencyKey string
}

type wirePayload struct {
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data"`
	Timestamp      string          `json:"timestamp"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// Validate validates the envelope structure
func (p Payload) Validate() error {
	if err := ValidateEventName(p.Event); err != nil {
		return err
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if p.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if len(p.Data) > 0 && !json.Valid(p.Data) {
		return fmt.Errorf("data must be valid JSON")
	}
	return nil
}

// MarshalJSON returns the JSON encoding of the payload
func (p Payload) MarshalJSON() ([]byte, error) {
	data := p.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(wirePayload{
		Event:          p.Event,
		Data:           data,
		Timestamp:      p.Timestamp.UTC().Format(time.RFC3339Nano),
		IdempotencyKey: p.IdempotencyKey,
	})
}

// UnmarshalJSON parses the JSON-encoded data and stores the result
func (p *Payload) UnmarshalJSON(data []byte) error {
	var aux wirePayload
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		// Try RFC3339 without nano precision
		timestamp, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
	}

	p.Event = aux.Event
	p.Data = aux.Data
	p.Timestamp = timestamp
	p.IdempotencyKey = aux.IdempotencyKey
	return nil
}

// New builds a payload for event with a timestamp taken once, here
// An empty idempotencyKey is replaced by a generated one
func New(event string, data json.RawMessage, idempotencyKey string, now time.Time) (Payload, error) {
	if idempotencyKey == "" {
		idempotencyKey = NewIdempotencyKey(now)
	}

	p := Payload{
		Event:          event,
		Data:           data,
		Timestamp:      now.UTC(),
		IdempotencyKey: idempotencyKey,
	}
	if err := p.Validate(); err != nil {
		return Payload{}, fmt.Errorf("validating payload: %w", err)
	}
	return p, nil
}

// Bytes returns the minified JSON encoding that is signed and sent
func (p Payload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

// NewIdempotencyKey generates a key in the form evt_<unix millis>_<random hex>
func NewIdempotencyKey(now time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("generating idempotency key: %v", err))
	}
	return fmt.Sprintf("evt_%d_%s", now.UnixMilli(), hex.EncodeToString(buf))
}

// MatchesEvent reports whether a subscription list covers event
// Supports exact matching, the "*" wildcard and prefix matching ("resource.*" matches "resource.created")
func MatchesEvent(subscriptions []string, event string) bool {
	for _, sub := range subscriptions {
		if sub == Wildcard || sub == event {
			return true
		}

		if prefix, ok := strings.CutSuffix(sub, ".*"); ok && prefix != "" {
			if strings.HasPrefix(event, prefix+".") {
				return true
			}
		}
	}
	return false
}

// ValidateEventName validates a concrete event name as used in a trigger
func ValidateEventName(event string) error {
	if event == "" {
		return fmt.Errorf("event is required")
	}
	if !eventTypePattern.MatchString(event) {
		return fmt.Errorf("event must be hierarchical and contain only [a-zA-Z0-9_.]: %s", event)
	}
	return nil
}

// ValidateSubscription validates an event subscription, which may be a wildcard
func ValidateSubscription(sub string) error {
	if sub == Wildcard {
		return nil
	}
	if sub == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	// Allow wildcard suffix for filtering
	if prefix, ok := strings.CutSuffix(sub, ".*"); ok {
		sub = prefix
	}

	if !eventTypePattern.MatchString(sub) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", sub)
	}
	return nil
}
