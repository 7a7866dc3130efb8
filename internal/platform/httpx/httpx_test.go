package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projtrack/projtrack/internal/shared"
	_ "github.com/projtrack/projtrack/testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound, "resource not found"},
		{"conflict", fmt.Errorf("%w: username taken", shared.ErrConflict), http.StatusConflict, "already exists: username taken"},
		{"invalid", fmt.Errorf("%w: name is required", shared.ErrInvalidInput), http.StatusBadRequest, "invalid input: name is required"},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden, "permission denied"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "not logged in"},
		{"credentials", shared.ErrInvalidCredentials, http.StatusUnauthorized, "invalid username or password"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := Classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, message)
		})
	}
}

func TestRespondErrorWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrForbidden)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "permission denied", env.Message)
}

type bindTarget struct {
	Name     string `json:"name" validate:"required"`
	Progress *int   `json:"progress" validate:"omitempty,gte=0,lte=100"`
}

func TestBind(t *testing.T) {
	v := NewValidator()
	bind := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var target bindTarget
		return Bind(req, v, &target)
	}

	require.NoError(t, bind(`{"name":"Login","progress":40}`))

	err := bind(``)
	require.ErrorIs(t, err, ErrValidation)

	err = bind(`{"name":"Login","extra":true}`)
	require.ErrorIs(t, err, ErrValidation)

	err = bind(`{"name":"Login"} {"name":"again"}`)
	require.ErrorIs(t, err, ErrValidation)

	status, message := Classify(bind(`{"progress":140}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "name is required; progress is out of range", message)
}

func TestPathID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := PathID(w, r, "id")
		if !ok {
			return
		}
		OK(w, http.StatusOK, "", id)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":42}`, rec.Body.String())

	for _, raw := range []string{"0", "-3", "abc"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.JSONEq(t, `{"success":false,"message":"invalid id"}`, rec.Body.String())
	}
}
