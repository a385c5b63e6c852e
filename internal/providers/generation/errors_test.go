package generation

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientKeepsMessageAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("poll: %w", Transient(cause))
	if !IsTransient(err) {
		t.Fatalf("expected transient")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if err.Error() != "poll: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if IsTransient(errors.New("dashscope: Invalid API-key (InvalidApiKey)")) {
		t.Fatalf("plain errors are not transient")
	}
	if Transient(nil) != nil {
		t.Fatalf("Transient(nil) must be nil")
	}
}
