package joborder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobord/app/store"
)

// CounterKey is the object holding the last used serial number
const CounterKey = "config/last-sr-no.json"

// Counter tracks the last used serial number in a single store object.
// Nothing is cached, every read goes to the store.
type Counter struct {
	Store store.Store
}

type counterDoc struct {
	LastSerial *int `json:"lastSerial,omitempty"`
	LastSrNo   *int `json:"lastSrNo,omitempty"` // written by older versions
}

// LastSerial returns the last used serial number. Missing, unreadable or broken counter gives 0,
// the failure is logged and not returned.
func (c *Counter) LastSerial(ctx context.Context) int {
	data, err := c.Store.Get(ctx, CounterKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[WARN] failed to read serial counter, using 0: %v", err)
		}
		return 0
	}

	var doc counterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("[WARN] failed to parse serial counter %q, using 0: %v", string(data), err)
		return 0
	}
	switch {
	case doc.LastSerial != nil:
		return *doc.LastSerial
	case doc.LastSrNo != nil:
		return *doc.LastSrNo
	default:
		return 0
	}
}

// NextSerial suggests the serial number for a new job order
func (c *Counter) NextSerial(ctx context.Context) int {
	return c.LastSerial(ctx) + 1
}

// SetLastSerial overwrites the counter with n, even if n is lower than the stored value
func (c *Counter) SetLastSerial(ctx context.Context, n int) error {
	data, err := json.Marshal(counterDoc{LastSerial: &n})
	if err != nil {
		return fmt.Errorf("failed to marshal serial counter: %w", err)
	}
	if _, err := c.Store.Put(ctx, CounterKey, data, store.PutOpts{ContentType: "application/json", AllowOverwrite: true}); err != nil {
		return fmt.Errorf("failed to write serial counter %d: %w", n, err)
	}
	return nil
}
