package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/fetch"
	"github.com/hyperengineering/exposure/internal/ledger"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest: {
		typeURI: "https://exposure.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://exposure.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: "https://exposure.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusBadGateway: {
		typeURI: "https://exposure.dev/errors/upstream-error",
		title:   "Bad Gateway",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://exposure.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusInternalServerError: {
		typeURI: "https://exposure.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://exposure.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var unavail *engine.UnavailableError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, ledger.ErrDuplicateSession):
		WriteProblem(w, r, http.StatusConflict, "A session is already in progress")
	case errors.As(err, &unavail):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Exposure engine unavailable: "+unavail.Health.Status.String())
	case errors.Is(err, engine.ErrResolutionRequired):
		WriteProblem(w, r, http.StatusConflict, "User resolution pending")
	case errors.Is(err, fetch.ErrIndexFetch):
		WriteProblem(w, r, http.StatusBadGateway, "Batch index unavailable")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
