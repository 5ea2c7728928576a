package credentials

import (
	"errors"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/zfogg/feedline/pkg/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Credentials is the session handed back by the login endpoint
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
}

// Load loads credentials from the configured path
func Load() (*Credentials, error) {
	return LoadFrom(config.GetCredentialsPath())
}

// LoadFrom loads credentials from path. A missing file yields nil, nil.
func LoadFrom(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// Save saves credentials to the configured path
func Save(creds *Credentials) error {
	return SaveTo(config.GetCredentialsPath(), creds)
}

// SaveTo writes credentials to path, readable by the owner only
func SaveTo(path string, creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Delete deletes credentials from the configured path
func Delete() error {
	return DeleteFrom(config.GetCredentialsPath())
}

// DeleteFrom removes the credentials file. Deleting absent credentials is not an error.
func DeleteFrom(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsExpired checks if the access token is expired. A zero expiry never expires.
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// IsValid checks if credentials are valid
func (c *Credentials) IsValid() bool {
	return c != nil && c.AccessToken != "" && !c.IsExpired()
}

// Token returns the access token while the credentials are valid
func (c *Credentials) Token() (string, bool) {
	if !c.IsValid() {
		return "", false
	}
	return c.AccessToken, true
}
