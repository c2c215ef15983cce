package svcerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	base := errors.New("commit failed")
	err := Persistence("commit run", base)
	if !Is(err, KindPersistence) {
		t.Fatalf("expected KindPersistence")
	}
	if Is(err, KindParse) {
		t.Fatalf("did not expect KindParse")
	}
}

func TestIsUnwrapsWrappedError(t *testing.T) {
	base := Parse("bad spn", errors.New("no slash"))
	wrapped := fmt.Errorf("worker category users: %w", base)
	if !Is(wrapped, KindParse) {
		t.Fatalf("expected wrapped error to report KindParse")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindQuery) {
		t.Fatalf("plain error should not match any kind")
	}
}
