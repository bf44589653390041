package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

const defaultEmptyCheckLimit = 3

// StateMachine owns every provider mutation. Providers move between
// disabled, active, checking and error only through its methods; each
// persisted transition is reported to the notifier.
type StateMachine struct {
	providers       database.ProviderRepository
	runs            database.CheckRunRepository
	notifier        ports.Notifier
	emptyCheckLimit int
	log             *slog.Logger
}

func NewStateMachine(providers database.ProviderRepository, runs database.CheckRunRepository, notifier ports.Notifier, emptyCheckLimit int, log *slog.Logger) *StateMachine {
	if emptyCheckLimit <= 0 {
		emptyCheckLimit = defaultEmptyCheckLimit
	}
	return &StateMachine{
		providers:       providers,
		runs:            runs,
		notifier:        notifier,
		emptyCheckLimit: emptyCheckLimit,
		log:             log,
	}
}

// Create registers a new provider. Initial status is disabled unless the
// provider is created enabled, in which case it starts active. The config
// blob must decode and validate for the provider type.
func (m *StateMachine) Create(ctx context.Context, p *dbmodels.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if !p.Type.Valid() {
		return core.NewConfigError(fmt.Errorf("unknown provider type %q", p.Type))
	}
	if _, err := p.DecodeConfig(); err != nil {
		return err
	}

	if p.Enabled {
		p.Status = core.StatusActive
	} else {
		p.Status = core.StatusDisabled
	}

	if err := m.providers.CreateProvider(ctx, p); err != nil {
		return err
	}
	m.notifyStatus(ctx, p, "provider created")
	return nil
}

// UpdateConfig replaces the provider's config blob (and optionally name and
// description). Malformed config is rejected here and never reaches the
// scheduler; valid updates take effect on the next scheduling pass.
func (m *StateMachine) UpdateConfig(ctx context.Context, id string, name, description *string, rawConfig []byte) (*dbmodels.Provider, error) {
	p, err := m.providers.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	if rawConfig != nil {
		if _, err := core.DecodeConfig(p.Type, rawConfig); err != nil {
			return nil, err
		}
		p.Config = string(rawConfig)
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}

	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Enable moves a disabled provider to active. A provider that is already
// enabled is left untouched.
func (m *StateMachine) Enable(ctx context.Context, id string) (*dbmodels.Provider, error) {
	p, err := m.providers.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == core.StatusChecking {
		return nil, fmt.Errorf("provider %s is currently checking", id)
	}
	if p.Enabled {
		return p, nil
	}

	p.Enabled = true
	p.Status = core.StatusActive
	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	m.notifyStatus(ctx, p, "provider enabled")
	return p, nil
}

// Disable is always allowed. A provider that is mid-check keeps its checking
// status until the in-flight run completes; the completion handlers override
// the final status back to disabled. Future scheduling stops immediately
// because the scheduler re-reads Enabled on every pass.
func (m *StateMachine) Disable(ctx context.Context, id string) (*dbmodels.Provider, error) {
	p, err := m.providers.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Enabled && p.Status == core.StatusDisabled {
		return p, nil
	}

	p.Enabled = false
	if p.Status != core.StatusChecking {
		p.Status = core.StatusDisabled
	}
	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	m.notifyStatus(ctx, p, "provider disabled")
	return p, nil
}

// StartCheck moves an active or errored provider to checking and records
// the attempt timestamp. Disabled providers must be enabled first.
func (m *StateMachine) StartCheck(ctx context.Context, id string) (*dbmodels.Provider, error) {
	p, err := m.providers.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", id)
	}
	if p.Status != core.StatusActive && p.Status != core.StatusError {
		return nil, fmt.Errorf("provider %s is not checkable in status %s", id, p.Status)
	}

	now := time.Now()
	p.Status = core.StatusChecking
	p.LastCheck = &now
	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckSucceeded consumes a successful (or partial) run: the provider
// returns to active, the error detail is cleared and the success timestamp
// recorded. Portal runs where every page matched nothing bump the
// consecutive-empty counter; once it reaches the limit the provider is
// surfaced as degraded.
func (m *StateMachine) CheckSucceeded(ctx context.Context, run *core.CheckRun) error {
	p, err := m.providers.GetProvider(ctx, run.ProviderID)
	if err != nil {
		return err
	}

	now := run.FinishedAt
	if now.IsZero() {
		now = time.Now()
	}
	p.LastCheck = &now
	p.LastErrorKind = ""
	p.LastErrorMessage = ""
	p.Status = core.StatusActive

	if run.EmptyPages {
		p.EmptyChecks++
		if p.EmptyChecks >= m.emptyCheckLimit {
			p.Status = core.StatusError
			p.LastErrorKind = string(core.ErrKindDegraded)
			p.LastErrorMessage = fmt.Sprintf("no download links matched on any page for %d consecutive checks", p.EmptyChecks)
		}
	} else {
		p.EmptyChecks = 0
	}

	if !p.Enabled {
		// Disabled mid-check: the run's result stands, the status does not.
		p.Status = core.StatusDisabled
	}

	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return err
	}
	m.appendRun(ctx, run)
	m.notifyStatus(ctx, p, p.LastErrorMessage)
	return nil
}

// CheckFailed consumes a failed run. The error detail is recorded and the
// provider moves to error; the attempt timestamp set by StartCheck stands.
func (m *StateMachine) CheckFailed(ctx context.Context, run *core.CheckRun) error {
	p, err := m.providers.GetProvider(ctx, run.ProviderID)
	if err != nil {
		return err
	}

	p.Status = core.StatusError
	if run.Err != nil {
		p.LastErrorKind = string(run.Err.Kind)
		p.LastErrorMessage = run.Err.Message()
	} else {
		p.LastErrorKind = string(core.ErrKindInternal)
		p.LastErrorMessage = "check failed"
	}

	if !p.Enabled {
		p.Status = core.StatusDisabled
	}

	if err := m.providers.UpdateProvider(ctx, p); err != nil {
		return err
	}
	m.appendRun(ctx, run)
	m.notifyStatus(ctx, p, p.LastErrorMessage)
	return nil
}

// RecoverInterrupted resolves providers persisted as checking after a
// process restart. They are never resumed silently as active: the
// interrupted run becomes an error detail. Must run before the scheduler
// starts dispatching.
func (m *StateMachine) RecoverInterrupted(ctx context.Context) error {
	providers, err := m.providers.ListProviders(ctx)
	if err != nil {
		return err
	}

	for _, p := range providers {
		if p.Status != core.StatusChecking {
			continue
		}
		p.Status = core.StatusError
		p.LastErrorKind = string(core.ErrKindInternal)
		p.LastErrorMessage = "check interrupted by process restart"
		if !p.Enabled {
			p.Status = core.StatusDisabled
		}
		if err := m.providers.UpdateProvider(ctx, p); err != nil {
			return fmt.Errorf("failed to recover provider %s: %w", p.ID, err)
		}
		m.log.Warn("resolved interrupted check", slog.String("provider", p.ID), slog.String("status", string(p.Status)))
		m.notifyStatus(ctx, p, p.LastErrorMessage)
	}
	return nil
}

func (m *StateMachine) appendRun(ctx context.Context, run *core.CheckRun) {
	rec := &dbmodels.CheckRunRecord{
		ProviderID:      run.ProviderID,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Outcome:         run.Outcome,
		NewItems:        run.NewItems,
		ChangedItems:    run.ChangedItems,
		SkippedItems:    run.SkippedItems,
		UnreadableFiles: run.UnreadableFiles,
	}
	if run.Err != nil {
		rec.ErrorKind = string(run.Err.Kind)
		rec.ErrorMessage = run.Err.Message()
	}
	if err := m.runs.AppendCheckRun(ctx, rec); err != nil {
		m.log.Warn("failed to append check run to activity log", slog.String("provider", run.ProviderID), slog.Any("error", err))
	}
}

func (m *StateMachine) notifyStatus(ctx context.Context, p *dbmodels.Provider, detail string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, core.Event{
		Type:       core.EventStatusChanged,
		ProviderID: p.ID,
		Status:     p.Status,
		Detail:     detail,
		At:         time.Now(),
	})
}
