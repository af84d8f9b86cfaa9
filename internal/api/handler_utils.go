// File: backend/internal/api/handler_utils.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/resetflow/backend/internal/campaigns"
)

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response with the given status code and payload.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("API Error: Failed to marshal JSON response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		jsonError := fmt.Sprintf("{\"error\": \"Failed to marshal JSON response: %v\"}", err)
		w.Write([]byte(jsonError))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		w.Write(response)
	}
}

// respondWithDomainError maps the campaign error taxonomy onto HTTP status
// codes: validation 400, not-found 404, invalid-state and conflict 409.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var validationErr *campaigns.ValidationError
	var notFoundErr *campaigns.NotFoundError
	var stateErr *campaigns.InvalidStateError
	var conflictErr *campaigns.ConflictError
	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFoundErr):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stateErr):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflictErr):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("API Error: Unexpected error: %v", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
