package notify

import (
	"context"
	"log/slog"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
)

// SlogNotifier writes events to the structured log. Default notifier when
// no delivery backend is configured.
type SlogNotifier struct {
	log *slog.Logger
}

var _ ports.Notifier = (*SlogNotifier)(nil)

func NewSlogNotifier(log *slog.Logger) *SlogNotifier {
	return &SlogNotifier{log: log}
}

func (n *SlogNotifier) Notify(_ context.Context, event core.Event) {
	switch event.Type {
	case core.EventItemsIngested:
		n.log.Info("new items ingested",
			slog.String("provider", event.ProviderID),
			slog.Int("count", event.NewItems))
	default:
		n.log.Info("provider status changed",
			slog.String("provider", event.ProviderID),
			slog.String("status", string(event.Status)),
			slog.String("detail", event.Detail))
	}
}
