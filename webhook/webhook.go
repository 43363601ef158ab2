package webhook

import (
	"net/url"
	"slices"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook/filter"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
)

/* Webhook represents a registered delivery destination
 * Uses value semantics as it represents data, not behavior
 * Secret is only handed back to the caller that registered it
 */
type Webhook struct {
	ID            string
	URL           string
	Events        []string
	Active        bool
	Secret        string
	Filter        string
	DeliveryCount int
	FailureCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the registration invariants
func (w Webhook) Validate() error {
	if err := ValidateURL(w.URL); err != nil {
		return err
	}
	if len(w.Events) == 0 {
		return NewValidationError("events", "at least one event is required")
	}
	for _, ev := range w.Events {
		if err := payload.ValidateSubscription(ev); err != nil {
			return NewValidationError("events", err.Error())
		}
	}
	if w.Filter != "" {
		if err := filter.Compile(w.Filter); err != nil {
			return NewValidationError("filter", err.Error())
		}
	}
	return nil
}

// Subscribes reports whether the webhook wants event, ignoring Active
func (w Webhook) Subscribes(event string) bool {
	return payload.MatchesEvent(w.Events, event)
}

// ValidateURL accepts absolute http and https URLs with a host
func ValidateURL(raw string) error {
	if raw == "" {
		return NewValidationError("url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("url", "url is not valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("url", "url must use http or https")
	}
	if u.Host == "" {
		return NewValidationError("url", "url must include a host")
	}
	return nil
}

/* WebhookPatch is a partial update
 * Nil fields are left untouched
 */
type WebhookPatch struct {
	URL    *string
	Events []string
	Active *bool
	Secret *string
	Filter *string
}

// Apply returns a copy of w with the patch applied
func (p WebhookPatch) Apply(w Webhook) Webhook {
	if p.URL != nil {
		w.URL = *p.URL
	}
	if p.Events != nil {
		w.Events = slices.Clone(p.Events)
	}
	if p.Active != nil {
		w.Active = *p.Active
	}
	if p.Secret != nil {
		w.Secret = *p.Secret
	}
	if p.Filter != nil {
		w.Filter = *p.Filter
	}
	return w
}

// WebhookFilter narrows GetAllWebhooks, zero values match everything
type WebhookFilter struct {
	Active *bool
	Event  string
}

// Matches reports whether w passes the filter
func (f WebhookFilter) Matches(w Webhook) bool {
	if f.Active != nil && w.Active != *f.Active {
		return false
	}
	if f.Event != "" && !w.Subscribes(f.Event) {
		return false
	}
	return true
}
