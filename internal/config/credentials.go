package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Credentials is the content of credentials.json. JSON is valid YAML, so
// the file is decoded with the same parser as the config file.
type Credentials struct {
	GoogleAPIKey string `yaml:"google_api_key" json:"google_api_key,omitempty"`
	ProjectID    string `yaml:"project_id" json:"project_id,omitempty"`
	Location     string `yaml:"location" json:"location,omitempty"`
}

// LoadCredentials reads path. A missing file yields an error matching
// os.ErrNotExist.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials
	if path == "" {
		return creds, fmt.Errorf("credentials file: %w", os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("read credentials file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	return creds, nil
}

// ApplyCredentials fills the API key and project when they are still empty.
// The location replaces the built-in default unless VERTEX_LOCATION is set.
func (c *Config) ApplyCredentials(creds Credentials) {
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = creds.GoogleAPIKey
	}
	if c.Vertex.ProjectID == "" {
		c.Vertex.ProjectID = creds.ProjectID
	}
	if creds.Location != "" && os.Getenv("VERTEX_LOCATION") == "" {
		c.Vertex.Location = creds.Location
	}
}

// Credentials returns the credential values currently held by c.
func (c *Config) Credentials() Credentials {
	return Credentials{
		GoogleAPIKey: c.Gemini.APIKey,
		ProjectID:    c.Vertex.ProjectID,
		Location:     c.Vertex.Location,
	}
}

// SaveCredentials writes creds to path as JSON readable only by the owner.
func SaveCredentials(path string, creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create credentials dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credentials file %s: %w", path, err)
	}
	return nil
}
