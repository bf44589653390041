package ports

import (
	"context"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// Session is the opaque authenticated handle an adapter produces. Folder
// variants return nil.
type Session any

// Discovery is the result of one discovery pass. Candidates may be partial
// when Discover also returns an error: they are the files observed before
// the failure.
type Discovery struct {
	Candidates []core.CandidateFile
	Unreadable int
}

// Adapter is the pluggable logic that authenticates (if needed) and
// discovers candidate files for one provider type. Each check starts a
// fresh discovery pass; a Discovery is never reused across invocations.
type Adapter interface {
	Authenticate(ctx context.Context) (Session, error)
	Discover(ctx context.Context, sess Session) (*Discovery, error)
}

// AdapterFactory builds the adapter for a provider from its current config.
// It is consulted on every check so config updates take effect on the next
// scheduling pass.
type AdapterFactory interface {
	AdapterFor(p *dbmodels.Provider) (Adapter, error)
}

// Notifier receives state-transition and ingestion events for user-visible
// alerting. Implementations must not block the check path.
type Notifier interface {
	Notify(ctx context.Context, event core.Event)
}
