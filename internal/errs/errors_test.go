package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_WalksTheChain(t *testing.T) {
	base := New(CodeInsufficientFunds, "short by 5")
	wrapped := fmt.Errorf("settling: %w", base)

	if code := CodeOf(wrapped); code != CodeInsufficientFunds {
		t.Errorf("Expected INSUFFICIENT_FUNDS through a fmt wrapper, got %s", code)
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Errorf("Expected UNKNOWN for an uncoded error")
	}
}

func TestHasCode_BusinessRule(t *testing.T) {
	err := NewBusinessRule(CodeNoOffer, SeverityError, "not for sale")
	if !HasCode(err, CodeNoOffer) {
		t.Errorf("Expected HasCode to see the violation code")
	}
	if HasCode(err, CodeExpired) {
		t.Errorf("Expected HasCode to reject an absent code")
	}
	if CodeOf(err) != CodeNoOffer {
		t.Errorf("Expected the first violation's code, got %s", CodeOf(err))
	}
}

func TestRootCause_StripsDataWrappers(t *testing.T) {
	cause := New(CodeExpired, "quote expired")
	wrapped := Wrap(Wrap(cause, CodeDataError, "loading quote"), CodeDataError, "purchase read")

	if got := RootCause(wrapped); got != cause {
		t.Errorf("Expected the expired cause, got %v", got)
	}

	// Non-data errors come back untouched.
	direct := New(CodeSecurityError, "nope")
	if RootCause(direct) != direct {
		t.Errorf("Expected non-data error unchanged")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(errors.New("io timeout"), CodeComFailure, "gateway unreachable")
	want := "gateway unreachable (COM_FAILURE): io timeout"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, err.Cause) {
		t.Errorf("Expected Unwrap to expose the cause")
	}
}
