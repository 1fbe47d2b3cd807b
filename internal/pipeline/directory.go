package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/extract"
)

// FileResult is the outcome for one file of a directory import.
type FileResult struct {
	Path   string        `json:"path"`
	Result *ImportResult `json:"result,omitempty"`
	Err    string        `json:"error,omitempty"`
}

type DirStats struct {
	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	Imported  int `json:"imported"`
	NotRubric int `json:"not_rubric"`
	Failed    int `json:"failed"`
}

// DirOptions controls which files ImportDirectory picks up.
type DirOptions struct {
	// IncludeExts defaults to every supported extension.
	IncludeExts []string
	SkipHidden  bool
	// Workers bounds concurrent imports. Each import is independent, so one
	// failure never stops the others.
	Workers int
}

// ImportDirectory walks root and imports every matching file for ownerID.
// Per-file failures are reported in the results and do not stop the walk.
func (im *Importer) ImportDirectory(ctx context.Context, ownerID, root string, opts DirOptions) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	exts := extSet(opts.IncludeExts)
	var (
		stats   DirStats
		results []FileResult
		paths   []string
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !exts.matches(path) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	imported := make([]FileResult, len(paths))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range paths {
		if ctx.Err() != nil {
			imported[i] = FileResult{Path: p, Err: ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			imported[i] = im.importFile(ctx, ownerID, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, fr := range imported {
		switch {
		case fr.Err != "":
			stats.Failed++
		case fr.Result.Success:
			stats.Imported++
		default:
			stats.NotRubric++
		}
		results = append(results, fr)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	im.Logger.Info("rubric.import_dir.done",
		"owner_id", ownerID,
		"root", root,
		"matched", stats.Matched,
		"imported", stats.Imported,
		"not_rubric", stats.NotRubric,
		"failed", stats.Failed,
	)
	return results, stats, ctx.Err()
}

type extensions map[string]struct{}

// extSet normalizes include; an empty list means every supported extension.
func extSet(include []string) extensions {
	exts := extensions{}
	if len(include) == 0 {
		for e := range constants.AllowedExtensions {
			exts[e] = struct{}{}
		}
		return exts
	}
	for _, e := range include {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			exts[e] = struct{}{}
		}
	}
	return exts
}

func (x extensions) matches(path string) bool {
	_, ok := x[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func (im *Importer) importFile(ctx context.Context, ownerID, path string) FileResult {
	f, err := os.Open(path)
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}
	}
	defer f.Close()

	res, err := im.Import(ctx, ImportRequest{
		OwnerID:  ownerID,
		Document: extract.Document{Name: filepath.Base(path), Content: f},
	})
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}
	}
	return FileResult{Path: path, Result: &res}
}
