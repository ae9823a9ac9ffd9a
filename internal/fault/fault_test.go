package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfExtractsWrappedFault(t *testing.T) {
	cause := errors.New("row locked")
	base := Wrap(KindConflict, "giveaway.add_key", "key already present", cause)
	wrapped := fmt.Errorf("handler: %w", base)

	if got := KindOf(wrapped); got != KindConflict {
		t.Fatalf("expected conflict kind, got %q", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected cause to survive wrapping")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain failure")); got != KindInternal {
		t.Fatalf("expected internal kind for untyped error, got %q", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("expected empty kind for nil error, got %q", got)
	}
}

func TestErrorStringIncludesOpAndMessage(t *testing.T) {
	err := New(KindForbidden, "vote.cast", "voting is disabled")
	want := "vote.cast: voting is disabled"
	if err.Error() != want {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
	if !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden kind")
	}
}
