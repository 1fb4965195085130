package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("Error includes wrapped", func(t *testing.T) {
		err := Storage("write blob", errors.New("disk full"))
		if got, want := err.Error(), "failed to write blob: disk full"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
		if err.StatusCode() != http.StatusInternalServerError {
			t.Errorf("StatusCode() = %d", err.StatusCode())
		}
	})

	t.Run("HasCode through wrapping", func(t *testing.T) {
		err := fmt.Errorf("save: %w", CapacityExceeded(10, 5))
		if !HasCode(err, ErrCapacityExceeded) {
			t.Error("expected HasCode to find CAPACITY_EXCEEDED")
		}
		if HasCode(err, ErrNotFound) {
			t.Error("unexpected NOT_FOUND")
		}
		if HasCode(errors.New("plain"), ErrInternal) {
			t.Error("plain errors carry no code")
		}
	})

	t.Run("Is matches code", func(t *testing.T) {
		err := fmt.Errorf("get: %w", NotFound("image 3"))
		if !errors.Is(err, NotFound("")) {
			t.Error("errors.Is should match on code")
		}
		if errors.Is(err, Conflict("")) {
			t.Error("errors.Is should not match a different code")
		}
	})

	t.Run("details", func(t *testing.T) {
		err := MissingFields("Please upload all three images for personalization code.", []string{"landscape"})
		if err.Code() != ErrMissingField {
			t.Errorf("Code() = %s", err.Code())
		}
		fields, ok := err.Details()["fields"].([]string)
		if !ok || len(fields) != 1 || fields[0] != "landscape" {
			t.Errorf("Details()[fields] = %v", err.Details()["fields"])
		}
		capErr := CapacityExceeded(12, 10)
		if capErr.Details()["size"] != 12 || capErr.Details()["capacity"] != 10 {
			t.Errorf("Details() = %v", capErr.Details())
		}
	})
}
