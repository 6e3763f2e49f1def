package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/services/reconcile"
)

// Files are the paths written for one run. Empty fields were not written.
type Files struct {
	Jobs     string
	PDF      string
	Unparsed string
	Changes  string
}

// Attachments lists the files worth mailing, changes report last
func (f Files) Attachments() []string {
	var paths []string
	for _, p := range []string{f.Jobs, f.PDF, f.Unparsed, f.Changes} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Exporter writes a run's outputs to disk
type Exporter struct {
	dir        string
	changesDir string
	pdf        bool
	logger     arbor.ILogger
}

// NewExporter creates an Exporter writing into dir. The changes report goes
// to changesDir, or dir when empty.
func NewExporter(dir, changesDir string, pdf bool, logger arbor.ILogger) *Exporter {
	if changesDir == "" {
		changesDir = dir
	}
	return &Exporter{
		dir:        dir,
		changesDir: changesDir,
		pdf:        pdf,
		logger:     logger,
	}
}

// Export writes the job list, the optional PDF, the unparsed list and, when
// diff is set, the change report
func (e *Exporter) Export(tag, title string, results []models.JobResult, incomplete []models.IncompleteJob, diff *models.DiffRecord) (Files, error) {
	names := NamesFor(tag)
	var files Files

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return files, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.dir, names.Jobs)
	if err := writeFile(path, func(w io.Writer) error { return WriteJobsText(w, results) }); err != nil {
		return files, err
	}
	files.Jobs = path

	if e.pdf {
		path = filepath.Join(e.dir, names.PDF)
		if err := writeFile(path, func(w io.Writer) error { return WriteJobsPDF(w, results, title) }); err != nil {
			return files, err
		}
		files.PDF = path
	}

	path = filepath.Join(e.dir, names.Unparsed)
	if err := writeFile(path, func(w io.Writer) error { return WriteUnparsed(w, incomplete) }); err != nil {
		return files, err
	}
	files.Unparsed = path

	if diff != nil {
		if err := os.MkdirAll(e.changesDir, 0755); err != nil {
			return files, fmt.Errorf("failed to create changes directory: %w", err)
		}
		path = filepath.Join(e.changesDir, names.Changes)
		if err := writeFile(path, func(w io.Writer) error { return reconcile.WriteChangeReport(w, *diff) }); err != nil {
			return files, err
		}
		files.Changes = path
	}

	e.logger.Info().
		Str("tag", tag).
		Int("results", len(results)).
		Int("incomplete", len(incomplete)).
		Str("jobs_file", files.Jobs).
		Bool("changes", diff != nil).
		Msg("Run outputs written")

	return files, nil
}

// writeFile renders into memory first so a render error leaves no partial file
func writeFile(path string, render func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadJobsFile imports a job list text file, typically a previous run's output
func LoadJobsFile(path string) ([]models.JobResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job list: %w", err)
	}
	defer f.Close()
	return ParseJobsText(f)
}
