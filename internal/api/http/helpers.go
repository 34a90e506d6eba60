package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/eduforge/assess/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("write response: %v", err)
		}
	}
}

// writeErr maps engine errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	var conflict *quiz.ConflictError
	var mismatch *quiz.TypeMismatchError
	var tooMany *quiz.RequestedCountExceedsBankError
	var thin *quiz.InsufficientBankSizeError
	var scale *quiz.ScaleValidationError
	var failed *quiz.AttemptCreationFailedError
	var persist *quiz.PersistenceError

	switch {
	case errors.Is(err, quiz.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrNotEligible),
		errors.Is(err, quiz.ErrPasswordRequired):
		status = http.StatusForbidden
	case errors.Is(err, quiz.ErrOutsideAvailabilityWindow),
		errors.Is(err, quiz.ErrAttemptQuotaExceeded),
		errors.Is(err, quiz.ErrActiveAttemptExists),
		errors.Is(err, quiz.ErrQuizHasAttempts),
		errors.Is(err, quiz.ErrAttemptFinished):
		status = http.StatusConflict
	case errors.As(err, &conflict),
		errors.As(err, &mismatch),
		errors.As(err, &tooMany),
		errors.As(err, &thin),
		errors.As(err, &scale):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &failed):
		status = http.StatusConflict
	case errors.As(err, &persist):
		status = http.StatusInternalServerError
		log.Printf("persistence: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
