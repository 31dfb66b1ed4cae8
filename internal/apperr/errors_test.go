package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("prompt %s", "p1"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", NotFound("prompt")), http.StatusNotFound},
		{"unauthorized", Unauthorized("cannot edit"), http.StatusForbidden},
		{"validation", Invalid("tags", "empty"), http.StatusBadRequest},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "validation failed: tags: empty", Invalid("tags", "empty").Error())
	assert.Equal(t, "validation failed: bad file", Invalid("", "bad file").Error())
	assert.True(t, IsValidation(Invalid("x", "y")))
}
