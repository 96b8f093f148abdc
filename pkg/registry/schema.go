// pkg/registry/schema.go
package registry

// TaskCatalog is the JSON document describing every task the workers serve.
// Entries may override the retry and cache policy compiled into the binary.
type TaskCatalog struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	Tasks       []TaskEntry `json:"tasks"`
}

type TaskEntry struct {
	Key                  string                 `json:"key"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Recipe               string                 `json:"recipe"`
	Version              string                 `json:"version"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema         map[string]interface{} `json:"outputSchema,omitempty"`
	ErrorCodes           []string               `json:"errorCodes,omitempty"`
	Timeout              string                 `json:"timeout,omitempty"`
	Retries              *int                   `json:"retries,omitempty"`
	RetryDelay           string                 `json:"retryDelay,omitempty"`
	CacheExpiration      string                 `json:"cacheExpiration,omitempty"`
	Tags                 []string               `json:"tags,omitempty"`
}

// ImplementationStatuses lists the accepted implementationStatus values.
var ImplementationStatuses = []string{"planned", "in-progress", "completed", "verified"}
