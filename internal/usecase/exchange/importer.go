// Package exchange moves translation memory in and out of the store in
// TMX form: streaming import with per-record error scoping and conflict
// policies, and filtered streaming export.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tmengine/internal/adapters/tmx"
	"tmengine/internal/domain"
	"tmengine/internal/normalize"
	"tmengine/internal/ports"
)

// ConflictPolicy decides what happens when an imported unit collides with
// a stored entry on (source hash, target language, context).
type ConflictPolicy string

const (
	// SkipExisting leaves the stored entry untouched.
	SkipExisting ConflictPolicy = "skip"
	// Overwrite replaces the stored target text and quality with the
	// imported unit's.
	Overwrite ConflictPolicy = "overwrite"
)

// ImportOptions tunes one import run.
type ImportOptions struct {
	Policy ConflictPolicy
	// MergeUsage honors the unit's exported usage count: kept as-is on a
	// fresh insert, added onto the stored entry when Overwrite replaces it.
	// SkipExisting never touches the stored entry, usage included. Off,
	// every import counts as a single use.
	MergeUsage bool
}

// ImportReport is the outcome of an import run. Errors holds the
// per-record failures that were skipped over; they never abort the run.
type ImportReport struct {
	Total    int
	Imported int
	Skipped  int
	Errors   []error
}

type Importer struct {
	entries ports.EntryRepository
	cache   ports.MatchCache
	log     *slog.Logger
}

func NewImporter(entries ports.EntryRepository, cache ports.MatchCache, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{entries: entries, cache: cache, log: log}
}

// Import streams translation units out of r into the store. Malformed
// units are recorded in the report and skipped; store failures and
// cancellation abort the run, returning the report for the records already
// processed.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	if opts.Policy == "" {
		opts.Policy = SkipExisting
	}
	if opts.Policy != SkipExisting && opts.Policy != Overwrite {
		return nil, &domain.ValidationError{Field: "policy", Message: fmt.Sprintf("unknown conflict policy %q", opts.Policy)}
	}

	dec := tmx.NewDecoder(r)
	report := &ImportReport{}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		unit, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var ferr *domain.FormatError
		if errors.As(err, &ferr) {
			report.Total++
			report.Errors = append(report.Errors, ferr)
			continue
		}
		if err != nil {
			return report, err
		}
		report.Total++
		if err := i.importUnit(ctx, unit, opts, report); err != nil {
			return report, err
		}
	}
	i.log.Info("import finished",
		"total", report.Total,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}

func (i *Importer) importUnit(ctx context.Context, u *tmx.Unit, opts ImportOptions, report *ImportReport) error {
	if ferr := validateUnit(u, report.Total); ferr != nil {
		report.Errors = append(report.Errors, ferr)
		return nil
	}

	// The hash is always recomputed from the parsed source text; exported
	// files carry no hashes and could not be trusted if they did.
	hash := normalize.HashText(u.SourceText)

	existing, err := i.entries.FindExact(ctx, hash, u.TargetLang, u.Context)
	if err != nil {
		return err
	}
	// FindExact falls back to the context-free entry; only a true triple
	// collision counts as a conflict here.
	if existing != nil && existing.DomainContext == u.Context {
		switch opts.Policy {
		case SkipExisting:
			report.Skipped++
			return nil
		case Overwrite:
			var usageDelta int64
			if opts.MergeUsage {
				usageDelta = u.UsageCount
			}
			i.cache.Invalidate(hash, u.TargetLang)
			if err := i.entries.OverwriteFromImport(ctx, existing.ID, u.TargetText, u.Quality, usageDelta); err != nil {
				return err
			}
			report.Imported++
			return nil
		}
	}

	usage := int64(1)
	if opts.MergeUsage && u.UsageCount > 1 {
		usage = u.UsageCount
	}
	i.cache.Invalidate(hash, u.TargetLang)
	if _, err := i.entries.InsertOrMerge(ctx, &domain.TmEntry{
		SourceText:    u.SourceText,
		SourceHash:    hash,
		SourceLang:    u.SourceLang,
		TargetLang:    u.TargetLang,
		TargetText:    u.TargetText,
		DomainContext: u.Context,
		UsageCount:    usage,
		QualityScore:  u.Quality,
	}); err != nil {
		return err
	}
	report.Imported++
	return nil
}

func validateUnit(u *tmx.Unit, position int) *domain.FormatError {
	switch {
	case normalize.Normalize(u.SourceText) == "":
		return &domain.FormatError{Unit: position, Message: "source segment is empty after normalization"}
	case strings.TrimSpace(u.TargetText) == "":
		return &domain.FormatError{Unit: position, Message: "target segment is empty"}
	case u.SourceLang == "" || u.TargetLang == "":
		return &domain.FormatError{Unit: position, Message: "missing language tag"}
	case u.Quality != nil && (*u.Quality < 0 || *u.Quality > 1):
		return &domain.FormatError{Unit: position, Message: fmt.Sprintf("quality score %v outside [0,1]", *u.Quality)}
	}
	return nil
}
