package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "bibkeys/internal/errors"
	"bibkeys/internal/keys"
	"bibkeys/internal/services"
	"bibkeys/internal/utils/bibtexparser"

	"github.com/gin-gonic/gin"
)

// readUpload returns the multipart "file" field or the raw request body,
// limited to maxBytes when positive.
func readUpload(c *gin.Context, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, uploadError("uploaded file", err)
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, uploadError("uploaded file", err)
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, uploadError("uploaded file", err)
		}
		return content, nil
	}

	content, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, uploadError("request body", err)
	}
	return content, nil
}

func uploadError(what string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierrors.New413Error(tooLarge.Limit)
	}
	return apierrors.New400Error(fmt.Sprintf("Failed to read %s: %v", what, err))
}

func readBibTeX(c *gin.Context, maxBytes int64) (io.Reader, error) {
	content, err := readUpload(c, maxBytes)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, apierrors.New400Error("Request body must contain BibTeX")
	}
	return bytes.NewReader(content), nil
}

type referenceSummary struct {
	Key       string `json:"key"`
	EntryType string `json:"entry_type"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Year      string `json:"year"`
	FilePath  string `json:"file_path,omitempty"`
}

type duplicateGroupResponse struct {
	Key        string             `json:"key"`
	Count      int                `json:"count"`
	References []referenceSummary `json:"references"`
}

func summarize(ref *keys.Reference) referenceSummary {
	return referenceSummary{
		Key:       ref.Key,
		EntryType: ref.EntryType,
		Title:     ref.Fields["title"],
		Author:    bibtexparser.DisplayAuthor(ref.Fields),
		Year:      ref.Fields["year"],
		FilePath:  ref.FilePath,
	}
}

func dedupeHandler(bibtexService services.BibTexService, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBibTeX(c, maxBytes)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}

		result, err := bibtexService.Dedupe(c.Request.Context(), body)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"bibtex":  result.BibTeX,
			"renames": result.Renames,
			"count":   len(result.References),
		})
	}
}

func duplicatesHandler(bibtexService services.BibTexService, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBibTeX(c, maxBytes)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}

		groups, err := bibtexService.Duplicates(c.Request.Context(), body)
		if err != nil {
			apierrors.HandleError(c, err)
			return
		}

		response := make([]duplicateGroupResponse, 0, len(groups))
		for _, g := range groups {
			group := duplicateGroupResponse{Key: g.Key, Count: len(g.References)}
			for _, ref := range g.References {
				group.References = append(group.References, summarize(ref))
			}
			response = append(response, group)
		}

		c.JSON(http.StatusOK, gin.H{"duplicates": response})
	}
}
