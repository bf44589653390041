package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

type ProviderStatus string

const (
	StatusActive   ProviderStatus = "active"
	StatusError    ProviderStatus = "error"
	StatusDisabled ProviderStatus = "disabled"
	StatusChecking ProviderStatus = "checking"
)

type ProviderType string

const (
	TypePortal       ProviderType = "portal"
	TypeRemoteFolder ProviderType = "remote_folder"
	TypeLocalFolder  ProviderType = "local_folder"
)

func (t ProviderType) Valid() bool {
	switch t {
	case TypePortal, TypeRemoteFolder, TypeLocalFolder:
		return true
	}
	return false
}

// CandidateFile is a file observed during one discovery pass, not yet
// reconciled against the catalog.
type CandidateFile struct {
	Path        string            `json:"path"`
	Name        string            `json:"name"`
	Category    string            `json:"category,omitempty"`
	Title       string            `json:"title,omitempty"`
	Version     string            `json:"version,omitempty"`
	Size        int64             `json:"size"`
	ModTime     time.Time         `json:"mod_time"`
	Checksum    string            `json:"checksum,omitempty"`
	DownloadURL string            `json:"download_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IdentityKey returns the value used to detect whether this candidate
// already exists in the catalog. The checksum wins when the adapter could
// compute one; otherwise path, size and modification time stand in for it.
func (c CandidateFile) IdentityKey() string {
	if c.Checksum != "" {
		return c.Checksum
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", c.Path, c.Size, c.ModTime.Unix())))
	return hex.EncodeToString(sum[:])
}

type CheckOutcome string

const (
	OutcomeSuccess CheckOutcome = "success"
	OutcomePartial CheckOutcome = "partial"
	OutcomeFailure CheckOutcome = "failure"
)

// CheckRun represents one invocation of a provider's adapter. It is created
// when the scheduler dispatches a check and consumed by the state machine;
// a copy is retained in the activity log.
type CheckRun struct {
	ProviderID      string       `json:"provider_id"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	Outcome         CheckOutcome `json:"outcome"`
	NewItems        int          `json:"new_items"`
	ChangedItems    int          `json:"changed_items"`
	SkippedItems    int          `json:"skipped_items"`
	UnreadableFiles int          `json:"unreadable_files"`
	EmptyPages      bool         `json:"empty_pages,omitempty"`
	Err             *CheckError  `json:"error,omitempty"`
}

type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventItemsIngested EventType = "items_ingested"
)

// Event is handed to the notifier on state transitions and on newly
// ingested items.
type Event struct {
	Type       EventType      `json:"type"`
	ProviderID string         `json:"provider_id"`
	Status     ProviderStatus `json:"status,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	NewItems   int            `json:"new_items,omitempty"`
	At         time.Time      `json:"at"`
}
