package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const defaultCheckIntervalMinutes = 60

// PortalPage is one page of an authenticated portal together with the CSS
// selectors identifying download links on it. Selectors are OR'd: any match
// yields a candidate.
type PortalPage struct {
	Name          string   `json:"name"`
	URL           string   `json:"url"`
	Enabled       bool     `json:"enabled"`
	Selectors     []string `json:"selectors"`
	CheckInterval int      `json:"checkInterval,omitempty"`
}

// PortalConfig configures an authenticated-portal provider.
type PortalConfig struct {
	Username      string       `json:"username"`
	Password      string       `json:"password"`
	AuthURL       string       `json:"authUrl"`
	BasePages     []PortalPage `json:"basePages"`
	CustomPages   []PortalPage `json:"customPages,omitempty"`
	Headless      bool         `json:"headless"`
	DownloadPath  string       `json:"downloadPath,omitempty"`
	CheckInterval int          `json:"checkInterval,omitempty"`
}

func (c *PortalConfig) Validate() error {
	if c.AuthURL == "" {
		return fmt.Errorf("authUrl is required")
	}
	if _, err := url.ParseRequestURI(c.AuthURL); err != nil {
		return fmt.Errorf("authUrl is not a valid URL: %w", err)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if len(c.BasePages) == 0 && len(c.CustomPages) == 0 {
		return fmt.Errorf("at least one page must be configured")
	}
	for _, p := range append(append([]PortalPage{}, c.BasePages...), c.CustomPages...) {
		if p.URL == "" {
			return fmt.Errorf("page %q has no url", p.Name)
		}
		if len(p.Selectors) == 0 {
			return fmt.Errorf("page %q has no selectors", p.Name)
		}
	}
	if c.CheckInterval < 0 {
		return fmt.Errorf("checkInterval cannot be negative")
	}
	return nil
}

// FolderConfig configures a remote-sync or local-watch folder provider.
type FolderConfig struct {
	WatchPath     string   `json:"watchPath"`
	CheckInterval int      `json:"checkInterval,omitempty"`
	Categories    []string `json:"categories,omitempty"`
}

func (c *FolderConfig) Validate() error {
	if c.WatchPath == "" {
		return fmt.Errorf("watchPath is required")
	}
	if c.CheckInterval < 0 {
		return fmt.Errorf("checkInterval cannot be negative")
	}
	return nil
}

// ProviderConfig is the tagged-variant configuration type: exactly one
// variant is populated, selected by the provider type.
type ProviderConfig struct {
	Portal *PortalConfig
	Folder *FolderConfig
}

// Interval returns the configured check interval, falling back to the
// default when unset.
func (c ProviderConfig) Interval() time.Duration {
	minutes := 0
	switch {
	case c.Portal != nil:
		minutes = c.Portal.CheckInterval
	case c.Folder != nil:
		minutes = c.Folder.CheckInterval
	}
	if minutes <= 0 {
		minutes = defaultCheckIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// DecodeConfig performs the discriminated-union decode of a raw config
// document into the variant selected by the provider type, validating the
// recognized keys. Decode failures and validation failures are both
// configuration errors and never reach the scheduler.
func DecodeConfig(t ProviderType, raw []byte) (ProviderConfig, error) {
	var cfg ProviderConfig

	if len(raw) == 0 {
		return cfg, NewConfigError(fmt.Errorf("config is required for provider type %q", t))
	}

	switch t {
	case TypePortal:
		var pc PortalConfig
		if err := json.Unmarshal(raw, &pc); err != nil {
			return cfg, NewConfigError(fmt.Errorf("malformed portal config: %w", err))
		}
		if err := pc.Validate(); err != nil {
			return cfg, NewConfigError(err)
		}
		cfg.Portal = &pc
	case TypeRemoteFolder, TypeLocalFolder:
		var fc FolderConfig
		if err := json.Unmarshal(raw, &fc); err != nil {
			return cfg, NewConfigError(fmt.Errorf("malformed folder config: %w", err))
		}
		if err := fc.Validate(); err != nil {
			return cfg, NewConfigError(err)
		}
		cfg.Folder = &fc
	default:
		return cfg, NewConfigError(fmt.Errorf("unknown provider type %q", t))
	}

	return cfg, nil
}
