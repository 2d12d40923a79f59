// Package notify posts transfer outcomes to an optional upstream webhook,
// so a LIS or dashboard can track deliveries without polling the agent.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Outcome is the JSON body posted for each terminal result.
type Outcome struct {
	Watch     string    `json:"watch"`
	Hostname  string    `json:"hostname"`
	Filename  string    `json:"filename"`
	Hint      string    `json:"hint,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier struct {
	endpoint string
	key      string
	client   *resty.Client
}

// New returns nil when no endpoint is configured; callers treat a nil
// Notifier as disabled.
func New(endpoint, key string) *Notifier {
	if endpoint == "" {
		return nil
	}
	return &Notifier{
		endpoint: endpoint,
		key:      key,
		client:   resty.New().SetTimeout(10 * time.Second),
	}
}

// Post delivers one outcome. Best effort: delivery failures are returned
// for logging but never affect the pipeline's own state.
func (n *Notifier) Post(ctx context.Context, o Outcome) error {
	if n == nil {
		return nil
	}
	_, err := n.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+n.key).
		SetBody(o).
		Post(n.endpoint + "/agent/outcome")
	return err
}
