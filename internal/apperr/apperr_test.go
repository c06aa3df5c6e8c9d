package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(Conflict, "duplicate")
	if KindOf(err) != Conflict {
		t.Errorf("KindOf = %v, want %v", KindOf(err), Conflict)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(State, "session ended"))
	if !Is(err, State) {
		t.Error("kind must survive fmt.Errorf wrapping")
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("parse failure")
	err := Wrap(Validation, "malformed token", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause must be reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Authentication, http.StatusUnauthorized},
		{Authorization, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{State, http.StatusGone},
		{Conflict, http.StatusConflict},
		{Validation, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := HTTPStatus(New(tt.kind, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("unclassified error = %d, want 500", got)
	}
}
