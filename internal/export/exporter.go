package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"semhist/internal/model"
	"semhist/internal/storage"
	"semhist/internal/version"
)

// Exporter reads the history database into snapshots.
type Exporter struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(db *storage.DB, logger *slog.Logger) *Exporter {
	return &Exporter{db: db, logger: logger, now: time.Now}
}

// Collect gathers everything the options ask for.
func (e *Exporter) Collect(ctx context.Context, opts Options) (*Snapshot, error) {
	e.logger.Debug("Starting export",
		"repo", opts.Repo,
		"format", string(opts.Format),
		"presence", opts.IncludePresence,
	)

	snap := &Snapshot{
		Metadata: Metadata{
			Repo:        opts.Repo,
			Generated:   e.now().UTC().Format(time.RFC3339),
			ToolVersion: version.Info(),
		},
	}

	var err error
	if snap.Commits, err = e.db.Commits(ctx); err != nil {
		return nil, err
	}
	if snap.Refs, err = e.db.Refs(ctx); err != nil {
		return nil, err
	}
	entities, err := e.db.LoadEntities(ctx)
	if err != nil {
		return nil, err
	}
	snap.Entities = qualify(entities)
	if snap.Changes, err = e.db.AllChanges(ctx); err != nil {
		return nil, err
	}
	if opts.IncludePresence {
		if snap.Presence, err = e.db.AllPresence(ctx); err != nil {
			return nil, err
		}
	}
	if opts.IncludeDeps {
		if snap.Deps, err = e.db.AllDeps(ctx); err != nil {
			return nil, err
		}
	}
	if snap.Status, err = e.db.Status(ctx); err != nil {
		return nil, err
	}

	e.logger.Debug("Collected export",
		"commits", len(snap.Commits),
		"entities", len(snap.Entities),
		"changes", len(snap.Changes),
		"presence", len(snap.Presence),
	)
	return snap, nil
}

// qualify resolves the file and dotted name of every entity. Entities come
// ordered by id, so parents precede children.
func qualify(entities []model.Entity) []ExportEntity {
	out := make([]ExportEntity, len(entities))
	index := make(map[int64]int, len(entities))
	for i, ent := range entities {
		out[i] = ExportEntity{Entity: ent}
		index[ent.ID] = i
		if ent.ParentID == 0 {
			out[i].File = ent.Name
			continue
		}
		p, ok := index[ent.ParentID]
		if !ok {
			continue
		}
		parent := out[p]
		out[i].File = parent.File
		if parent.Qualified == "" {
			out[i].Qualified = ent.Name
		} else {
			out[i].Qualified = parent.Qualified + "." + ent.Name
		}
	}
	return out
}

// Write encodes snap to w.
func Write(w io.Writer, snap *Snapshot, opts Options) (err error) {
	if opts.Compress {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return fmt.Errorf("failed to create zstd writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}

	switch opts.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown export format %q", opts.Format)
}

// WriteFile writes snap to path, creating parent directories.
func WriteFile(path string, snap *Snapshot, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, snap, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read decodes a snapshot written by Write with the same options.
func Read(r io.Reader, opts Options) (*Snapshot, error) {
	if opts.Compress {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	snap := &Snapshot{}
	switch opts.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(snap); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(snap); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", opts.Format)
	}
	return snap, nil
}
