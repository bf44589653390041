package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
)

// FolderAdapter discovers files below a watched path. Top-level sub-folder
// names become categories. It backs both the remote-sync and local-watch
// provider variants; the only difference between them is who manages the
// path.
type FolderAdapter struct {
	fs  afero.Fs
	cfg *core.FolderConfig
	log *slog.Logger
}

var _ ports.Adapter = (*FolderAdapter)(nil)

func NewFolderAdapter(fsys afero.Fs, cfg *core.FolderConfig, log *slog.Logger) *FolderAdapter {
	return &FolderAdapter{fs: fsys, cfg: cfg, log: log}
}

// Authenticate is a no-op for folder-based sources.
func (a *FolderAdapter) Authenticate(ctx context.Context) (ports.Session, error) {
	return nil, nil
}

// Discover walks the watched path recursively and yields every file,
// unconditionally: no file-type filtering. Unreadable entries are skipped
// and counted; a missing or unreachable watch path fails the run.
func (a *FolderAdapter) Discover(ctx context.Context, _ ports.Session) (*ports.Discovery, error) {
	root := filepath.Clean(a.cfg.WatchPath)

	ok, err := afero.DirExists(a.fs, root)
	if err != nil {
		return nil, core.NewUnreachableError(fmt.Errorf("cannot stat watch path %s: %w", root, err))
	}
	if !ok {
		return nil, core.NewUnreachableError(fmt.Errorf("watch path %s does not exist", root))
	}

	disc := &ports.Discovery{}
	walkErr := afero.Walk(a.fs, root, func(path string, info fs.FileInfo, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			a.log.Warn("skipping unreadable entry", slog.String("path", path), slog.Any("error", err))
			disc.Unreadable++
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		disc.Candidates = append(disc.Candidates, core.CandidateFile{
			Path:     rel,
			Name:     info.Name(),
			Category: categoryOf(rel),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return disc, walkErr
		}
		return disc, core.NewUnreachableError(fmt.Errorf("walk of %s failed: %w", root, walkErr))
	}

	a.log.Debug("folder discovery finished",
		slog.String("path", root),
		slog.Int("candidates", len(disc.Candidates)),
		slog.Int("unreadable", disc.Unreadable))
	return disc, nil
}

// categoryOf derives the category from the first path element below the
// watch root. Files directly in the root stay uncategorized.
func categoryOf(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}
