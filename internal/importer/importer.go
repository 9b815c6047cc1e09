// Package importer keeps the question bank in step with its sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/fingerprint"
	"github.com/conorfennell/examprep/internal/logger"
	"github.com/conorfennell/examprep/internal/parser"
	"github.com/conorfennell/examprep/internal/storage"
)

var (
	ErrInvalidSource  = errors.New("importer: invalid source")
	ErrSourceExists   = errors.New("importer: source already exists")
	ErrSourceNotFound = errors.New("importer: source not found")
)

// Fetcher brings a git repository up to date at localPath.
type Fetcher interface {
	Sync(ctx context.Context, url, localPath string) error
}

type Importer struct {
	db       *storage.DB
	git      Fetcher
	log      *logger.Logger
	reposDir string
	now      func() time.Time
}

func New(db *storage.DB, git Fetcher, log *logger.Logger, reposDir string) *Importer {
	return &Importer{
		db:       db,
		git:      git,
		log:      log.With("service", "Importer"),
		reposDir: reposDir,
		now:      time.Now,
	}
}

// SourceReport is the outcome of syncing one source.
type SourceReport struct {
	SourceID    int64    `json:"source_id"`
	Path        string   `json:"path"`
	Imported    int      `json:"imported"`
	Deactivated int      `json:"deactivated"`
	Problems    []string `json:"problems,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Report is the outcome of a full sync.
type Report struct {
	Sources []SourceReport `json:"sources"`
}

// DetectType tells a git URL from a local path.
func DetectType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return domain.SourceGit
	}
	return domain.SourceLocal
}

// AddSource registers a local directory or a git URL. Local paths are stored
// absolute and must exist.
func (im *Importer) AddSource(ctx context.Context, path string) (*domain.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidSource)
	}

	sourceType := DetectType(path)
	if sourceType == domain.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, path)
		}
		path = abs
	} else if _, err := gitURLToLocalPath(im.reposDir, path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	existing, err := im.db.Sources().FindByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceExists, path)
	}

	id, err := im.db.Sources().Insert(ctx, path, sourceType)
	if err != nil {
		return nil, err
	}
	im.log.Info("Source added", "id", id, "type", sourceType, "path", path)
	return &domain.Source{ID: id, Path: path, Type: sourceType}, nil
}

// ListSources returns every registered source.
func (im *Importer) ListSources(ctx context.Context) ([]domain.Source, error) {
	return im.db.Sources().List(ctx)
}

// RemoveSource deletes a source and deactivates its questions.
func (im *Importer) RemoveSource(ctx context.Context, id int64) error {
	err := im.db.Sources().Delete(ctx, id)
	if errors.Is(err, storage.ErrNoRowsAffected) {
		return fmt.Errorf("%w: %d", ErrSourceNotFound, id)
	}
	if err != nil {
		return err
	}
	im.log.Info("Source removed", "id", id)
	return nil
}

// RunSync iterates over all sources and reconciles them. A failing source is
// reported and does not stop the others.
func (im *Importer) RunSync(ctx context.Context) (*Report, error) {
	im.log.Info("Starting sync process for all sources")
	sources, err := im.db.Sources().List(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Sources: []SourceReport{}}
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources = append(report.Sources, im.SyncSource(ctx, source))
	}
	im.log.Info("Sync process complete", "sources", len(sources))
	return report, nil
}

// SyncSource fetches one source if it is a git repository and reconciles it.
func (im *Importer) SyncSource(ctx context.Context, source domain.Source) SourceReport {
	log := im.log.With("source_id", source.ID, "type", source.Type, "path", source.Path)
	log.Info("Syncing source")

	dir := source.Path
	if source.Type == domain.SourceGit {
		localRepoPath, err := gitURLToLocalPath(im.reposDir, source.Path)
		if err == nil {
			err = os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm)
		}
		if err == nil {
			err = im.git.Sync(ctx, source.Path, localRepoPath)
		}
		if err != nil {
			log.Error("Error syncing git repo", "error", err)
			return SourceReport{SourceID: source.ID, Path: source.Path, Error: err.Error()}
		}
		dir = localRepoPath
	}

	report, err := im.reconcile(ctx, source, dir)
	if err != nil {
		log.Error("Reconciliation failed", "error", err)
		report.Error = err.Error()
		return report
	}
	log.Info("Reconciliation complete",
		"imported", report.Imported,
		"deactivated", report.Deactivated,
		"problems", len(report.Problems),
	)
	return report
}

// reconcile upserts every question found under dir and deactivates the
// source's questions that are gone. Questions are never deleted because
// session queues keep referring to them.
func (im *Importer) reconcile(ctx context.Context, source domain.Source, dir string) (SourceReport, error) {
	report := SourceReport{SourceID: source.ID, Path: source.Path}
	found := make(map[string]domain.Question)
	var order []string

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		questions, problems, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("%s: %v", path, parseErr))
			return nil
		}
		for _, p := range problems {
			report.Problems = append(report.Problems, fmt.Sprintf("%s:%s", path, p.Error()))
		}
		for _, q := range questions {
			q.ID = fingerprint.Hash(q)
			if _, dup := found[q.ID]; !dup {
				order = append(order, q.ID)
			}
			found[q.ID] = q
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	err := im.db.InTx(ctx, func(ctx context.Context) error {
		questions := im.db.Questions()
		for _, id := range order {
			if err := questions.Upsert(ctx, found[id], source.ID); err != nil {
				return err
			}
		}

		active, err := questions.ListActiveIDsBySource(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, id := range active {
			if _, ok := found[id]; ok {
				continue
			}
			if err := questions.Deactivate(ctx, id); err != nil {
				return err
			}
			report.Deactivated++
		}

		return im.db.Sources().UpdateLastScanned(ctx, source.ID, im.now())
	})
	if err != nil {
		return report, err
	}
	report.Imported = len(order)
	return report, nil
}

// gitURLToLocalPath maps https and scp-style git URLs to a directory under baseDir.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 && hostAndUser[1] != "" && parts[1] != "" {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return safeJoin(baseDir, host, repoPath)
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return safeJoin(baseDir, parsedURL.Host, sanitizedPath)
}

// safeJoin rejects paths that would escape baseDir.
func safeJoin(baseDir, host, repoPath string) (string, error) {
	if host == "" || strings.Trim(repoPath, "/") == "" {
		return "", fmt.Errorf("git URL needs a host and a repository path")
	}
	joined := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, joined)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL escapes the repositories directory")
	}
	return joined, nil
}
