package models

import (
	"time"

	"github.com/uptrace/bun"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
)

// Provider is the persistent record of one configured external file source.
// Status is mutated only through state-machine transitions.
type Provider struct {
	bun.BaseModel `bun:"table:providers,alias:p"`

	ID               string              `bun:",pk" json:"id"`
	Name             string              `bun:",notnull" json:"name"`
	Description      string              `bun:",nullzero" json:"description,omitempty"`
	Type             core.ProviderType   `bun:",notnull" json:"type"`
	Enabled          bool                `bun:",notnull" json:"enabled"`
	Status           core.ProviderStatus `bun:",notnull" json:"status"`
	LastCheck        *time.Time          `bun:",nullzero" json:"last_check,omitempty"`
	LastErrorKind    string              `bun:",nullzero" json:"last_error_kind,omitempty"`
	LastErrorMessage string              `bun:",nullzero" json:"last_error_message,omitempty"`
	EmptyChecks      int                 `bun:",notnull,default:0" json:"empty_checks"`
	Config           string              `bun:",notnull" json:"config"` // JSON blob, variant keyed by Type
	CreatedAt        time.Time           `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time           `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// DecodeConfig decodes the stored config blob into the variant selected by
// the provider type. Callers must not cache the result across scheduling
// passes.
func (p *Provider) DecodeConfig() (core.ProviderConfig, error) {
	return core.DecodeConfig(p.Type, []byte(p.Config))
}

// DownloadItem is one catalogued file. Within a provider the file path is
// unique: the same physical file is never catalogued twice.
type DownloadItem struct {
	bun.BaseModel `bun:"table:download_items,alias:di"`

	ID           string    `bun:",pk" json:"id"`
	ProviderID   string    `bun:",notnull,unique:items_provider_path" json:"provider_id"`
	IdentityKey  string    `bun:",notnull" json:"identity_key"`
	Category     string    `bun:",nullzero" json:"category,omitempty"`
	Title        string    `bun:",nullzero" json:"title,omitempty"`
	Version      string    `bun:",nullzero" json:"version,omitempty"`
	FileName     string    `bun:",notnull" json:"file_name"`
	FilePath     string    `bun:",notnull,unique:items_provider_path" json:"file_path"`
	FileSize     int64     `bun:",nullzero" json:"file_size"`
	Checksum     string    `bun:",nullzero" json:"checksum,omitempty"`
	FileModTime  time.Time `bun:",nullzero" json:"file_mod_time,omitempty"`
	DownloadedAt time.Time `bun:",nullzero" json:"downloaded_at,omitempty"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	Tags         string    `bun:",nullzero" json:"tags,omitempty"`     // JSON array blob
	Metadata     string    `bun:",nullzero" json:"metadata,omitempty"` // JSON blob
}

// CheckRunRecord is the append-only activity log of check executions.
type CheckRunRecord struct {
	bun.BaseModel `bun:"table:check_runs,alias:cr"`

	ID              int64             `bun:",pk,autoincrement" json:"id"`
	ProviderID      string            `bun:",notnull" json:"provider_id"`
	StartedAt       time.Time         `bun:",notnull" json:"started_at"`
	FinishedAt      time.Time         `bun:",nullzero" json:"finished_at"`
	Outcome         core.CheckOutcome `bun:",notnull" json:"outcome"`
	NewItems        int               `bun:",notnull,default:0" json:"new_items"`
	ChangedItems    int               `bun:",notnull,default:0" json:"changed_items"`
	SkippedItems    int               `bun:",notnull,default:0" json:"skipped_items"`
	UnreadableFiles int               `bun:",notnull,default:0" json:"unreadable_files"`
	ErrorKind       string            `bun:",nullzero" json:"error_kind,omitempty"`
	ErrorMessage    string            `bun:",nullzero" json:"error_message,omitempty"`
}
