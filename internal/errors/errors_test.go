package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bibkeys/internal/services"
	"bibkeys/internal/utils/bibtexparser"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: thesis", services.ErrProjectNotFound), http.StatusNotFound},
		{services.ErrReferenceNotFound, http.StatusNotFound},
		{services.ErrProjectExists, http.StatusConflict},
		{services.ErrDuplicateKey, http.StatusConflict},
		{services.ErrInvalidName, http.StatusBadRequest},
		{fmt.Errorf("entry 2: %w", bibtexparser.ErrMalformed), http.StatusBadRequest},
		{services.ErrStorageDisabled, http.StatusConflict},
		{fmt.Errorf("failed to read request body: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{New401Error(), http.StatusUnauthorized},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, FromServiceError(tc.err).StatusCode, tc.err.Error())
	}
}

func TestHandleErrorHidesInternalMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/projects", nil)

	HandleError(c, fmt.Errorf("connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Type)
	assert.Equal(t, "An unexpected error occurred", body.Error.Message)
}
