package exchange

import (
	"context"
	"io"
	"log/slog"

	"tmengine/internal/adapters/tmx"
	"tmengine/internal/domain"
	"tmengine/internal/ports"
)

// ExportOptions selects which entries are written and how.
type ExportOptions struct {
	// SourceLang is written into the document header. Required.
	SourceLang string
	// TargetLang selects the language pair to export. Required.
	TargetLang string
	// Context narrows the export to one context plus context-free entries.
	// Empty exports everything for the pair.
	Context string
	// MinQuality drops rated entries below the bound. Unrated entries are
	// always exported; absence of a rating is not a low rating.
	MinQuality *float64
	// Progress, when set, is invoked after every written unit.
	Progress func(written int)
}

type Exporter struct {
	entries ports.EntryRepository
	log     *slog.Logger
}

func NewExporter(entries ports.EntryRepository, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{entries: entries, log: log}
}

// Export streams the selected entries into w as a TMX document and returns
// how many units were written. Cancellation aborts between units, leaving a
// truncated document behind.
func (x *Exporter) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	if opts.SourceLang == "" {
		return 0, &domain.ValidationError{Field: "source_lang", Message: "must not be empty"}
	}
	if opts.TargetLang == "" {
		return 0, &domain.ValidationError{Field: "target_lang", Message: "must not be empty"}
	}

	entries, err := x.entries.ScanCandidates(ctx, opts.TargetLang, opts.Context, 0)
	if err != nil {
		return 0, err
	}

	enc := tmx.NewEncoder(w, opts.SourceLang)
	written := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if opts.MinQuality != nil {
			if q, ok := e.Quality(); ok && q < *opts.MinQuality {
				continue
			}
		}
		if err := enc.Write(e); err != nil {
			return written, err
		}
		written++
		if opts.Progress != nil {
			opts.Progress(written)
		}
	}
	if err := enc.Close(); err != nil {
		return written, err
	}
	x.log.Info("export finished", "target_lang", opts.TargetLang, "units", written)
	return written, nil
}
