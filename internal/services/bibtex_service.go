package services

import (
	"context"
	"fmt"
	"io"

	"bibkeys/internal/keys"
	"bibkeys/internal/models"
	"bibkeys/internal/utils/bibtexparser"

	"github.com/rs/zerolog"
)

type ImportResult struct {
	Project    string             `json:"project"`
	References []models.Reference `json:"references"`
	Renames    []keys.Rename      `json:"renames"`
}

type DedupeResult struct {
	BibTeX     string           `json:"bibtex"`
	References []keys.Reference `json:"references"`
	Renames    []keys.Rename    `json:"renames"`
}

type BibTexService interface {
	ImportBibTeX(ctx context.Context, projectName string, r io.Reader) (*ImportResult, error)
	ExportBibTeX(ctx context.Context, projectName string, w io.Writer) error
	Dedupe(ctx context.Context, r io.Reader) (*DedupeResult, error)
	Duplicates(ctx context.Context, r io.Reader) ([]keys.DuplicateGroup, error)
	DuplicatesInFiles(ctx context.Context, paths []string) ([]keys.DuplicateGroup, error)
	MergeFiles(ctx context.Context, paths []string, dropIdentical bool) (string, *keys.MergeReport, error)
}

type DefaultBibTexService struct {
	projects ProjectService
	opts     keys.Options
}

func NewBibTexService(projects ProjectService, opts keys.Options) *DefaultBibTexService {
	return &DefaultBibTexService{projects: projects, opts: opts}
}

func parseReader(r io.Reader, source string) ([]keys.Reference, error) {
	if r == nil {
		return nil, ErrNoInput
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bibtex: %w", err)
	}
	entries, err := bibtexparser.ParseString(string(content))
	if err != nil {
		return nil, err
	}
	return keys.FromEntries(entries, source), nil
}

func (s *DefaultBibTexService) ImportBibTeX(ctx context.Context, projectName string, r io.Reader) (*ImportResult, error) {
	log := zerolog.Ctx(ctx)

	refs, err := parseReader(r, "")
	if err != nil {
		return nil, err
	}

	stored, renames, err := s.projects.ImportReferences(projectName, refs, s.opts)
	if err != nil {
		return nil, err
	}

	for _, rn := range renames {
		log.Debug().Str("project", projectName).Str("from", rn.From).Str("to", rn.To).Msg("renamed citation key on import")
	}
	log.Info().
		Str("project", projectName).
		Int("imported", len(stored)).
		Int("renamed", len(renames)).
		Msg("imported bibtex")

	if stored == nil {
		stored = []models.Reference{}
	}
	if renames == nil {
		renames = []keys.Rename{}
	}
	return &ImportResult{Project: projectName, References: stored, Renames: renames}, nil
}

func (s *DefaultBibTexService) ExportBibTeX(ctx context.Context, projectName string, w io.Writer) error {
	project, err := s.projects.GetProject(projectName)
	if err != nil {
		return err
	}

	refs := make([]keys.Reference, 0, len(project.References))
	for _, r := range project.References {
		refs = append(refs, ToKeysReference(r))
	}

	if _, err := io.WriteString(w, bibtexparser.Format(keys.ToEntries(refs))); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("project", projectName).Int("references", len(refs)).Msg("exported bibtex")
	return nil
}

func (s *DefaultBibTexService) Dedupe(ctx context.Context, r io.Reader) (*DedupeResult, error) {
	refs, err := parseReader(r, "")
	if err != nil {
		return nil, err
	}

	resolved, renames := keys.ResolveDuplicateKeys(refs, s.opts)
	zerolog.Ctx(ctx).Debug().Int("references", len(resolved)).Int("renamed", len(renames)).Msg("resolved citation keys")

	if renames == nil {
		renames = []keys.Rename{}
	}
	return &DedupeResult{
		BibTeX:     bibtexparser.Format(keys.ToEntries(resolved)),
		References: resolved,
		Renames:    renames,
	}, nil
}

func (s *DefaultBibTexService) Duplicates(ctx context.Context, r io.Reader) ([]keys.DuplicateGroup, error) {
	refs, err := parseReader(r, "")
	if err != nil {
		return nil, err
	}
	return keys.FindDuplicateKeys(refs, s.opts), nil
}

func loadFiles(paths []string) ([][]keys.Reference, error) {
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	sets := make([][]keys.Reference, 0, len(paths))
	for _, path := range paths {
		entries, err := bibtexparser.ParseFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, keys.FromEntries(entries, path))
	}
	return sets, nil
}

// DuplicatesInFiles reports keys colliding anywhere across paths. Each
// reference carries the file it came from.
func (s *DefaultBibTexService) DuplicatesInFiles(ctx context.Context, paths []string) ([]keys.DuplicateGroup, error) {
	sets, err := loadFiles(paths)
	if err != nil {
		return nil, err
	}

	var all []keys.Reference
	for _, set := range sets {
		all = append(all, set...)
	}
	return keys.FindDuplicateKeys(all, s.opts), nil
}

// MergeFiles parses paths in order and returns the merged, key-unique BibTeX.
func (s *DefaultBibTexService) MergeFiles(ctx context.Context, paths []string, dropIdentical bool) (string, *keys.MergeReport, error) {
	sets, err := loadFiles(paths)
	if err != nil {
		return "", nil, err
	}

	merged, report := keys.Merge(sets, s.opts, dropIdentical)
	zerolog.Ctx(ctx).Info().
		Int("files", report.Inputs).
		Int("total", report.Total).
		Int("dropped", report.DroppedIdentical).
		Int("renamed", len(report.Renames)).
		Msg("merged bibtex files")

	if report.Renames == nil {
		report.Renames = []keys.Rename{}
	}
	return bibtexparser.Format(keys.ToEntries(merged)), &report, nil
}
