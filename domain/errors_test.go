package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindedErrorsInheritCode(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind ErrorKind
		code ErrorCode
	}{
		{name: "auth", err: NewAuthError("sign in failed", ErrInvalidCredentials), kind: KindAuth, code: ErrCodeUnauthorized},
		{name: "fetch", err: NewFetchError("could not load tasks", errors.New("conn reset")), kind: KindFetch, code: ErrCodeInternal},
		{name: "write", err: NewWriteError("could not update task", ErrTaskNotFound), kind: KindWrite, code: ErrCodeNotFound},
		{name: "storage", err: NewStorageError("upload failed", ErrObjectTooLarge), kind: KindStorage, code: ErrCodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if CodeOf(tt.err) != tt.code {
				t.Errorf("CodeOf() = %q, want %q", CodeOf(tt.err), tt.code)
			}
			if !IsKind(tt.err, tt.kind) {
				t.Errorf("IsKind(%q) = false", tt.kind)
			}
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	err := NewWriteError("could not delete task", ErrOperationInFlight)

	want := "WriteError: could not delete task: another operation is in progress for this task"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrOperationInFlight) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
	if !IsDomainError(err, ErrCodeConflict) {
		t.Error("IsDomainError(CONFLICT) = false")
	}
}

func TestIsKindWalksChain(t *testing.T) {
	inner := NewStorageError("upload failed", nil)
	outer := fmt.Errorf("create: %w", NewWriteError("could not add task", inner))

	if !IsKind(outer, KindWrite) || !IsKind(outer, KindStorage) {
		t.Error("expected both kinds in the chain")
	}
	if IsKind(outer, KindFetch) {
		t.Error("unexpected FetchError kind")
	}
	if IsKind(errors.New("plain"), KindAuth) {
		t.Error("plain error has no kind")
	}
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	if CodeOf(errors.New("boom")) != ErrCodeInternal {
		t.Error("expected INTERNAL for a plain error")
	}
	if CodeOf(nil) != ErrCodeInternal {
		t.Error("expected INTERNAL for nil")
	}
}
