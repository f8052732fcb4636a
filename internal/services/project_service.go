package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bibkeys/internal/keys"
	"bibkeys/internal/models"
	"bibkeys/internal/utils/bibtexparser"

	"gorm.io/gorm"
)

type ProjectService interface {
	CreateProject(name string) (*models.Project, error)
	ListProjects() ([]models.Project, error)
	GetProject(name string) (*models.Project, error)
	DeleteProject(name string) error
	AddReference(projectName string, ref keys.Reference) (*models.Reference, error)
	GetReference(projectName, key string) (*models.Reference, error)
	RemoveReference(projectName, key string) error
	ImportReferences(projectName string, refs []keys.Reference, opts keys.Options) ([]models.Reference, []keys.Rename, error)
	AttachFile(projectName, key string, src io.Reader) (*models.Reference, error)
}

type DefaultProjectService struct {
	db         *gorm.DB
	opts       keys.Options
	storageDir string
}

// NewProjectService compares keys according to opts and keeps attached paper
// files under storageDir, one directory per project.
func NewProjectService(db *gorm.DB, opts keys.Options, storageDir string) ProjectService {
	return &DefaultProjectService{db: db, opts: opts, storageDir: storageDir}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

func (s *DefaultProjectService) CreateProject(name string) (*models.Project, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	var project *models.Project
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Project{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrProjectExists, name)
		}
		project = &models.Project{Name: name}
		return tx.Create(project).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *DefaultProjectService) ListProjects() ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.Order("name").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject loads a project with its references in insertion order.
func (s *DefaultProjectService) GetProject(name string) (*models.Project, error) {
	var project models.Project
	err := s.db.Preload("References", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Where("name = ?", name).First(&project).Error
	if err != nil {
		return nil, notFound(err, ErrProjectNotFound, name)
	}
	return &project, nil
}

func (s *DefaultProjectService) findProject(tx *gorm.DB, name string) (*models.Project, error) {
	var project models.Project
	if err := tx.Where("name = ?", name).First(&project).Error; err != nil {
		return nil, notFound(err, ErrProjectNotFound, name)
	}
	return &project, nil
}

func (s *DefaultProjectService) DeleteProject(name string) error {
	var dir string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.findProject(tx, name)
		if err != nil {
			return err
		}
		dir = s.projectDir(project)
		if err := tx.Unscoped().Where("project_id = ?", project.ID).Delete(&models.Reference{}).Error; err != nil {
			return err
		}
		return tx.Delete(project).Error
	})
	if err != nil {
		return err
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove project files: %w", err)
		}
	}
	return nil
}

func (s *DefaultProjectService) AddReference(projectName string, ref keys.Reference) (*models.Reference, error) {
	if strings.TrimSpace(ref.Key) == "" {
		return nil, fmt.Errorf("%w: empty citation key", ErrInvalidReference)
	}
	if strings.TrimSpace(ref.EntryType) == "" {
		return nil, fmt.Errorf("%w: empty entry type", ErrInvalidReference)
	}

	var stored *models.Reference
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.findProject(tx, projectName)
		if err != nil {
			return err
		}

		query := tx.Model(&models.Reference{}).Where("project_id = ?", project.ID)
		if s.opts.CaseInsensitive {
			query = query.Where("LOWER(key) = ?", strings.ToLower(ref.Key))
		} else {
			query = query.Where("key = ?", ref.Key)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, ref.Key)
		}

		stored = toModel(project, ref)
		return tx.Create(stored).Error
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *DefaultProjectService) GetReference(projectName, key string) (*models.Reference, error) {
	project, err := s.findProject(s.db, projectName)
	if err != nil {
		return nil, err
	}

	var reference models.Reference
	err = s.db.Where("project_id = ? AND key = ?", project.ID, key).First(&reference).Error
	if err != nil {
		return nil, notFound(err, ErrReferenceNotFound, key)
	}
	return &reference, nil
}

// RemoveReference deletes the reference and any paper file attached to it.
func (s *DefaultProjectService) RemoveReference(projectName, key string) error {
	var attached string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.findProject(tx, projectName)
		if err != nil {
			return err
		}

		var reference models.Reference
		if err := tx.Where("project_id = ? AND key = ?", project.ID, key).First(&reference).Error; err != nil {
			return notFound(err, ErrReferenceNotFound, key)
		}
		if s.inProjectDir(project, reference.FilePath) {
			attached = reference.FilePath
		}
		return tx.Unscoped().Delete(&reference).Error
	})
	if err != nil {
		return err
	}
	if attached != "" {
		if err := os.Remove(attached); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", attached, err)
		}
	}
	return nil
}

// AttachFile copies src into the project's storage directory under the
// reference's standardized filename and records the new path. A name already
// used by another reference gets the citation key appended.
func (s *DefaultProjectService) AttachFile(projectName, key string, src io.Reader) (*models.Reference, error) {
	if s.storageDir == "" {
		return nil, ErrStorageDisabled
	}

	var reference models.Reference
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.findProject(tx, projectName)
		if err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND key = ?", project.ID, key).First(&reference).Error; err != nil {
			return notFound(err, ErrReferenceNotFound, key)
		}

		dir := s.projectDir(project)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		dest := filepath.Join(dir, sanitizeFileComponent(keys.StandardizedFilename(ToKeysReference(reference))))
		var taken int64
		if err := tx.Model(&models.Reference{}).
			Where("project_id = ? AND file_path = ? AND id <> ?", project.ID, dest, reference.ID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			ext := filepath.Ext(dest)
			dest = strings.TrimSuffix(dest, ext) + "_" + sanitizeFileComponent(reference.Key) + ext
		}

		tmp, err := writeTemp(dir, src)
		if err != nil {
			return err
		}
		if err := tx.Model(&reference).Update("file_path", dest).Error; err != nil {
			os.Remove(tmp)
			return err
		}
		reference.FilePath = dest
		if err := os.Rename(tmp, dest); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to store %s: %w", dest, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reference, nil
}

func writeTemp(dir string, src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (s *DefaultProjectService) projectDir(project *models.Project) string {
	if s.storageDir == "" {
		return ""
	}
	return filepath.Join(s.storageDir, project.Name)
}

func (s *DefaultProjectService) inProjectDir(project *models.Project, path string) bool {
	dir := s.projectDir(project)
	if dir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func sanitizeFileComponent(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, s)
}

// ImportReferences stores refs in the project. Keys already in the project are
// reserved, so only incoming references are ever renamed.
func (s *DefaultProjectService) ImportReferences(projectName string, refs []keys.Reference, opts keys.Options) ([]models.Reference, []keys.Rename, error) {
	var stored []models.Reference
	var renames []keys.Rename

	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.findProject(tx, projectName)
		if err != nil {
			return err
		}

		var existing []string
		if err := tx.Model(&models.Reference{}).Where("project_id = ?", project.ID).Pluck("key", &existing).Error; err != nil {
			return err
		}

		opts.Reserved = append(append([]string(nil), opts.Reserved...), existing...)
		var resolved []keys.Reference
		resolved, renames = keys.ResolveDuplicateKeys(refs, opts)
		if len(resolved) == 0 {
			return nil
		}

		stored = make([]models.Reference, 0, len(resolved))
		for _, ref := range resolved {
			stored = append(stored, *toModel(project, ref))
		}
		return tx.Create(&stored).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return stored, renames, nil
}

func toModel(project *models.Project, ref keys.Reference) *models.Reference {
	originalKey := ref.OriginalKey
	if originalKey == "" {
		originalKey = ref.Key
	}
	fields := ref.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return &models.Reference{
		ProjectID:   project.ID,
		Key:         ref.Key,
		OriginalKey: originalKey,
		EntryType:   strings.ToLower(ref.EntryType),
		Fields:      fields,
		FilePath:    ref.FilePath,
		RawBibEntry: bibtexparser.FormatEntry(strings.ToLower(ref.EntryType), ref.Key, fields),
	}
}

// ToKeysReference converts a stored reference back into the resolver's type.
func ToKeysReference(r models.Reference) keys.Reference {
	return keys.Reference{
		Key:         r.Key,
		EntryType:   r.EntryType,
		Fields:      r.Fields,
		OriginalKey: r.OriginalKey,
		FilePath:    r.FilePath,
	}
}

func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", sentinel, what)
	}
	return err
}
