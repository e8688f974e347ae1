package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Run("direct error", func(t *testing.T) {
		err := New(KindForbidden, "no")
		if KindOf(err) != KindForbidden {
			t.Errorf("got %v, want KindForbidden", KindOf(err))
		}
	})

	t.Run("wrapped in fmt.Errorf", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(KindNotFound, "missing"))
		if KindOf(err) != KindNotFound {
			t.Errorf("got %v, want KindNotFound", KindOf(err))
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if KindOf(errors.New("boom")) != KindUnknown {
			t.Error("plain error should be KindUnknown")
		}
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("db down")
	err := Wrap(KindStorageFailure, "failed to save", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindStorageFailure, http.StatusInternalServerError},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("kind %v: got %d, want %d", tc.kind, got, tc.want)
		}
	}

	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("plain error: got %d", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindStorageFailure, "failed to save", errors.New("db down"))
	if err.Error() != "failed to save: db down" {
		t.Errorf("got %q", err.Error())
	}
	if New(KindValidation, "bad input").Error() != "bad input" {
		t.Error("message without cause should be unchanged")
	}
}
