package services

import (
	"io"

	"bibkeys/internal/keys"
	"bibkeys/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockProjectService struct {
	mock.Mock
}

func (m *MockProjectService) CreateProject(name string) (*models.Project, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) ListProjects() ([]models.Project, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *MockProjectService) GetProject(name string) (*models.Project, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) DeleteProject(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockProjectService) AddReference(projectName string, ref keys.Reference) (*models.Reference, error) {
	args := m.Called(projectName, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reference), args.Error(1)
}

func (m *MockProjectService) GetReference(projectName, key string) (*models.Reference, error) {
	args := m.Called(projectName, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reference), args.Error(1)
}

func (m *MockProjectService) RemoveReference(projectName, key string) error {
	args := m.Called(projectName, key)
	return args.Error(0)
}

func (m *MockProjectService) ImportReferences(projectName string, refs []keys.Reference, opts keys.Options) ([]models.Reference, []keys.Rename, error) {
	args := m.Called(projectName, refs, opts)
	var stored []models.Reference
	if args.Get(0) != nil {
		stored = args.Get(0).([]models.Reference)
	}
	var renames []keys.Rename
	if args.Get(1) != nil {
		renames = args.Get(1).([]keys.Rename)
	}
	return stored, renames, args.Error(2)
}

func (m *MockProjectService) AttachFile(projectName, key string, src io.Reader) (*models.Reference, error) {
	args := m.Called(projectName, key, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reference), args.Error(1)
}
