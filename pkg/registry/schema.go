package registry

import "time"

// Template is a versioned prompt template.
type Template struct {
	Name      string                 `json:"name"`
	Version   string                 `json:"version"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"createdAt"`
	Active    bool                   `json:"active"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Overlay is the on-disk format for prompt overrides. Entries are merged
// over the built-in defaults at load time.
type Overlay struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Prompts     []Template `json:"prompts"`
}
