package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
	"gopkg.in/yaml.v3"
)

/* Loader reads webhook registrations from webhooks.yaml
 * Entries are validated on load and registered at startup
 */

// Config represents the structure of webhooks.yaml
type Config struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig represents a single registration in the YAML file
type WebhookConfig struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Active *bool    `yaml:"active"` // Default: true
	Secret string   `yaml:"secret"` // Optional, generated on registration when empty
	Filter string   `yaml:"filter"`
}

// Loader holds the loaded registrations
type Loader struct {
	webhooks map[string]webhook.Webhook
}

// NewLoader creates a new seed loader
func NewLoader() *Loader {
	return &Loader{
		webhooks: make(map[string]webhook.Webhook),
	}
}

// Load reads and validates the seed file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	return l.Parse(data)
}

// Parse validates the YAML document in data
func (l *Loader) Parse(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing seed YAML: %w", err)
	}

	for i, wc := range config.Webhooks {
		if wc.ID == "" {
			return fmt.Errorf("webhook #%d: id cannot be empty", i+1)
		}
		if _, exists := l.webhooks[wc.ID]; exists {
			return fmt.Errorf("webhook %s: duplicate id", wc.ID)
		}

		active := true
		if wc.Active != nil {
			active = *wc.Active
		}
		wh := webhook.Webhook{
			ID:     wc.ID,
			URL:    wc.URL,
			Events: wc.Events,
			Active: active,
			Secret: wc.Secret,
			Filter: wc.Filter,
		}

		if err := wh.Validate(); err != nil {
			return fmt.Errorf("validating webhook %s: %w", wc.ID, err)
		}
		if wh.Secret != "" {
			if _, err := signature.ParseSecret(wh.Secret); err != nil {
				return fmt.Errorf("invalid secret for webhook %s: %w", wc.ID, err)
			}
		}

		l.webhooks[wh.ID] = wh
	}

	return nil
}

// Get retrieves a registration by id
func (l *Loader) Get(id string) (webhook.Webhook, bool) {
	wh, ok := l.webhooks[id]
	return wh, ok
}

// List returns all loaded registrations sorted by id
func (l *Loader) List() []webhook.Webhook {
	list := make([]webhook.Webhook, 0, len(l.webhooks))
	for _, wh := range l.webhooks {
		list = append(list, wh)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Apply registers every entry that the service does not know yet
// Existing registrations are left untouched so restarts keep runtime edits
func (l *Loader) Apply(ctx context.Context, svc webhook.UseCase) (created int, err error) {
	for _, wh := range l.List() {
		_, err := svc.Get(ctx, wh.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, webhook.ErrNotFound) {
			return created, fmt.Errorf("checking webhook %s: %w", wh.ID, err)
		}

		if _, err := svc.Register(ctx, wh); err != nil {
			return created, fmt.Errorf("registering webhook %s: %w", wh.ID, err)
		}
		created++
	}
	return created, nil
}
