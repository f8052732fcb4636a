package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bibkeys/internal/keys"
	"bibkeys/internal/models"
	"bibkeys/internal/utils/bibtexparser"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const duplicateBib = `
@article{smith2020,
  author = {Smith, John},
  title = {First},
  year = {2020}
}

@article{smith2020,
  author = {Smith, Jane},
  title = {Second},
  year = {2020}
}

@book{knuth1984,
  author = {Knuth, Donald},
  title = {The TeXbook},
  year = {1984}
}
`

func testContext(buf *bytes.Buffer) context.Context {
	logger := zerolog.New(buf)
	return logger.WithContext(context.Background())
}

func TestDedupe(t *testing.T) {
	svc := NewBibTexService(new(MockProjectService), keys.DefaultOptions())

	result, err := svc.Dedupe(context.Background(), strings.NewReader(duplicateBib))
	require.NoError(t, err)

	require.Len(t, result.References, 3)
	assert.Equal(t, "smith2020", result.References[0].Key)
	assert.Equal(t, "smith2020_1", result.References[1].Key)
	assert.Equal(t, []keys.Rename{{Index: 1, From: "smith2020", To: "smith2020_1"}}, result.Renames)
	assert.Contains(t, result.BibTeX, "@article{smith2020_1,")

	entries, err := bibtexparser.ParseString(result.BibTeX)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDedupeMalformed(t *testing.T) {
	svc := NewBibTexService(new(MockProjectService), keys.DefaultOptions())

	_, err := svc.Dedupe(context.Background(), strings.NewReader("@article{k title = {x}}"))
	assert.ErrorIs(t, err, bibtexparser.ErrMalformed)

	_, err = svc.Dedupe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestDuplicates(t *testing.T) {
	svc := NewBibTexService(new(MockProjectService), keys.DefaultOptions())

	groups, err := svc.Duplicates(context.Background(), strings.NewReader(duplicateBib))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "smith2020", groups[0].Key)
	assert.Len(t, groups[0].References, 2)
}

func TestImportBibTeXDelegatesToProjects(t *testing.T) {
	projects := new(MockProjectService)
	opts := keys.DefaultOptions()
	svc := NewBibTexService(projects, opts)

	stored := []models.Reference{{Key: "smith2020"}, {Key: "smith2020_1"}, {Key: "knuth1984"}}
	renames := []keys.Rename{{Index: 1, From: "smith2020", To: "smith2020_1"}}
	projects.On("ImportReferences", "thesis", mock.MatchedBy(func(refs []keys.Reference) bool {
		return len(refs) == 3 && refs[0].Key == "smith2020" && refs[2].Key == "knuth1984"
	}), opts).Return(stored, renames, nil)

	var logs bytes.Buffer
	result, err := svc.ImportBibTeX(testContext(&logs), "thesis", strings.NewReader(duplicateBib))
	require.NoError(t, err)

	assert.Equal(t, "thesis", result.Project)
	assert.Len(t, result.References, 3)
	assert.Equal(t, renames, result.Renames)
	assert.Contains(t, logs.String(), "imported bibtex")
	projects.AssertExpectations(t)
}

func TestImportBibTeXProjectMissing(t *testing.T) {
	projects := new(MockProjectService)
	svc := NewBibTexService(projects, keys.DefaultOptions())
	projects.On("ImportReferences", "missing", mock.Anything, mock.Anything).Return(nil, nil, ErrProjectNotFound)

	_, err := svc.ImportBibTeX(context.Background(), "missing", strings.NewReader(duplicateBib))
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestImportExportRoundTrip(t *testing.T) {
	projects := NewProjectService(setupTestDB(t), keys.DefaultOptions(), t.TempDir())
	svc := NewBibTexService(projects, keys.DefaultOptions())
	_, err := projects.CreateProject("thesis")
	require.NoError(t, err)

	_, err = svc.ImportBibTeX(context.Background(), "thesis", strings.NewReader(duplicateBib))
	require.NoError(t, err)
	second, err := svc.ImportBibTeX(context.Background(), "thesis", strings.NewReader(duplicateBib))
	require.NoError(t, err)
	assert.Equal(t, "smith2020_2", second.References[0].Key)
	assert.Equal(t, "smith2020_3", second.References[1].Key)
	assert.Equal(t, "knuth1984_1", second.References[2].Key)

	var out bytes.Buffer
	require.NoError(t, svc.ExportBibTeX(context.Background(), "thesis", &out))

	entries, err := bibtexparser.ParseString(out.String())
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Empty(t, keys.FindDuplicateKeys(keys.FromEntries(entries, ""), keys.DefaultOptions()))
	assert.Equal(t, "smith2020", entries[0].CiteName)
}

func TestExportBibTeXProjectMissing(t *testing.T) {
	projects := new(MockProjectService)
	svc := NewBibTexService(projects, keys.DefaultOptions())
	projects.On("GetProject", "missing").Return(nil, ErrProjectNotFound)

	var out bytes.Buffer
	assert.ErrorIs(t, svc.ExportBibTeX(context.Background(), "missing", &out), ErrProjectNotFound)
	assert.Zero(t, out.Len())
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.bib")
	second := filepath.Join(dir, "b.bib")
	require.NoError(t, os.WriteFile(first, []byte(duplicateBib), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(`@book{knuth1984,
  author = {Knuth, Donald},
  title = {The TeXbook},
  year = {1984}
}`), 0o644))

	svc := NewBibTexService(new(MockProjectService), keys.DefaultOptions())

	out, report, err := svc.MergeFiles(context.Background(), []string{first, second}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inputs)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.DroppedIdentical)
	assert.Equal(t, 3, report.Output)

	entries, err := bibtexparser.ParseString(out)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	out, report, err = svc.MergeFiles(context.Background(), []string{first, second}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Output)
	assert.Contains(t, out, "@book{knuth1984_1,")

	_, _, err = svc.MergeFiles(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestDuplicatesInFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.bib")
	second := filepath.Join(dir, "b.bib")
	require.NoError(t, os.WriteFile(first, []byte("@misc{lee2021, title = {One}}"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("@misc{lee2021, title = {Two}}"), 0o644))

	svc := NewBibTexService(new(MockProjectService), keys.DefaultOptions())

	groups, err := svc.DuplicatesInFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, first, groups[0].References[0].FilePath)
	assert.Equal(t, second, groups[0].References[1].FilePath)

	_, err = svc.DuplicatesInFiles(context.Background(), []string{filepath.Join(dir, "missing.bib")})
	assert.Error(t, err)
}
