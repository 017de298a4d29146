package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"quantity": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"quantity":3}`, rec.Body.String())
}

func TestWriteReason(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteReason(rec, http.StatusConflict, "insufficient stock")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"reason":"insufficient stock"}`, rec.Body.String())
}
