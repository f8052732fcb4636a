package api

import (
	"bytes"
	"fmt"
	"net/http"

	apierrors "bibkeys/internal/errors"
	"bibkeys/internal/keys"
	"bibkeys/internal/services"

	"github.com/gin-gonic/gin"
)

func listProjectsHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := projectService.ListProjects()
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

func createProjectHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Name string `json:"name" binding:"required"`
		}

		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.HandleError(c, apierrors.New400Error(err.Error()))
			return
		}

		project, err := projectService.CreateProject(request.Name)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, project)
	}
}

func getProjectHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := projectService.GetProject(c.Param("name"))
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func deleteProjectHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := projectService.DeleteProject(c.Param("name")); err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
	}
}

func importHandler(bibtexService services.BibTexService, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBibTeX(c, maxBytes)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}

		result, err := bibtexService.ImportBibTeX(c.Request.Context(), c.Param("name"), body)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func exportHandler(bibtexService services.BibTexService) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		var out bytes.Buffer
		if err := bibtexService.ExportBibTeX(c.Request.Context(), name, &out); err != nil {
			apierrors.HandleError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".bib"))
		c.Data(http.StatusOK, "application/x-bibtex; charset=utf-8", out.Bytes())
	}
}

func addReferenceHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Key       string            `json:"key" binding:"required"`
			EntryType string            `json:"entry_type" binding:"required"`
			Fields    map[string]string `json:"fields"`
			FilePath  string            `json:"file_path"`
		}

		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.HandleError(c, apierrors.New400Error(err.Error()))
			return
		}

		ref := keys.Reference{
			Key:       request.Key,
			EntryType: request.EntryType,
			Fields:    request.Fields,
			FilePath:  request.FilePath,
		}
		stored, err := projectService.AddReference(c.Param("name"), ref)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"reference":          stored,
			"suggested_filename": keys.StandardizedFilename(ref),
		})
	}
}

func getReferenceHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference, err := projectService.GetReference(c.Param("name"), c.Param("key"))
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"reference":          reference,
			"suggested_filename": keys.StandardizedFilename(services.ToKeysReference(*reference)),
		})
	}
}

func deleteReferenceHandler(projectService services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := projectService.RemoveReference(c.Param("name"), c.Param("key")); err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Reference deleted successfully"})
	}
}

func attachFileHandler(projectService services.ProjectService, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		content, err := readUpload(c, maxBytes)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		if len(content) == 0 {
			apierrors.HandleError(c, apierrors.New400Error("Request body must contain the paper file"))
			return
		}

		reference, err := projectService.AttachFile(c.Param("name"), c.Param("key"), bytes.NewReader(content))
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reference": reference})
	}
}
