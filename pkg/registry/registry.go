// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LoadCatalog reads a task catalog from path.
func LoadCatalog(path string) (*TaskCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat TaskCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Save writes the catalog to path, stamping LastUpdated.
func (c *TaskCatalog) Save(path string) error {
	c.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Find returns the entry for key.
func (c *TaskCatalog) Find(key string) (*TaskEntry, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].Key == key {
			return &c.Tasks[i], true
		}
	}
	return nil, false
}

// Upsert replaces the entry with the same key or appends e.
func (c *TaskCatalog) Upsert(e TaskEntry) {
	if existing, ok := c.Find(e.Key); ok {
		*existing = e
		return
	}
	c.Tasks = append(c.Tasks, e)
}

// Validate checks keys are unique and durations parse.
func (c *TaskCatalog) Validate() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, e := range c.Tasks {
		if e.Key == "" {
			errs = append(errs, fmt.Errorf("task entry without key"))
			continue
		}
		if seen[e.Key] {
			errs = append(errs, fmt.Errorf("%s: duplicate key", e.Key))
		}
		seen[e.Key] = true

		for field, value := range map[string]string{
			"timeout":         e.Timeout,
			"retryDelay":      e.RetryDelay,
			"cacheExpiration": e.CacheExpiration,
		} {
			if value == "" {
				continue
			}
			if _, err := time.ParseDuration(value); err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid %s %q", e.Key, field, value))
			}
		}
		if e.Retries != nil && *e.Retries < 0 {
			errs = append(errs, fmt.Errorf("%s: retries must not be negative", e.Key))
		}
		if !validStatus(e.ImplementationStatus) {
			errs = append(errs, fmt.Errorf("%s: unknown implementationStatus %q", e.Key, e.ImplementationStatus))
		}
	}
	return errs
}

func validStatus(s string) bool {
	if s == "" {
		return true
	}
	for _, v := range ImplementationStatuses {
		if v == s {
			return true
		}
	}
	return false
}
