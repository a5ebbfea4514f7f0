package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBookingError maps the engine's error taxonomy onto HTTP statuses.
// Slot validation failures are 422 (well-formed request, unbookable slot),
// races and wrong-state transitions are 409.
func writeBookingError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case booking.KindPastSlot, booking.KindSlotMisaligned:
		status = http.StatusUnprocessableEntity
	case booking.KindConflict, booking.KindInvalidTransition:
		status = http.StatusConflict
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: kind.String()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
