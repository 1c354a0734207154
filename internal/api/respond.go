package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/auth"
	"github.com/dgallion1/ragassist/internal/store"
)

const maxJSONBody = 1 << 20

var (
	errNotFound         = apperr.New(apperr.NotFound, "resource not found")
	errMethodNotAllowed = apperr.New(apperr.Validation, "method not allowed")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperr.Write(w, r, err)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.Validation, "request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.New(apperr.Validation, "request body too large")
		}
		return apperr.Wrap(err, apperr.Validation, "invalid JSON body")
	}
	return nil
}

// currentUser is set by auth middleware on every /api/v1 route.
func currentUser(r *http.Request) *store.User {
	return auth.UserFrom(r.Context())
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.Validation, "%s must be an integer", name)
	}
	return n, nil
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
