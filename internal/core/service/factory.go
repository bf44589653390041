package service

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/adapters/source"
	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// AdapterFactory builds adapters from the provider's current config blob.
type AdapterFactory struct {
	fs  afero.Fs
	log *slog.Logger
}

var _ ports.AdapterFactory = (*AdapterFactory)(nil)

// NewAdapterFactory creates a factory. The filesystem backs folder-based
// adapters; pass afero.NewOsFs() in production.
func NewAdapterFactory(fs afero.Fs, log *slog.Logger) *AdapterFactory {
	return &AdapterFactory{fs: fs, log: log}
}

func (f *AdapterFactory) AdapterFor(p *dbmodels.Provider) (ports.Adapter, error) {
	cfg, err := p.DecodeConfig()
	if err != nil {
		return nil, err
	}

	switch p.Type {
	case core.TypePortal:
		return source.NewPortalAdapter(cfg.Portal, f.log), nil
	case core.TypeRemoteFolder, core.TypeLocalFolder:
		return source.NewFolderAdapter(f.fs, cfg.Folder, f.log), nil
	default:
		return nil, fmt.Errorf("no adapter for provider type %q", p.Type)
	}
}
