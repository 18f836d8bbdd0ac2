package ioengine

import (
	"errors"
	"testing"
)

func TestErrRoundTrip(t *testing.T) {
	cause := errors.New("boom")

	err := Err(ConnRefused, cause)
	if err == nil {
		t.Fatal("Err(ConnRefused, cause) returned nil")
	}

	if got := ResultOf(err); got != ConnRefused {
		t.Fatalf("ResultOf = %v, want %v", got, ConnRefused)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through to the wrapped cause")
	}
}

func TestErrSuccessIsNil(t *testing.T) {
	if err := Err(Success, nil); err != nil {
		t.Fatalf("Err(Success, nil) = %v, want nil", err)
	}
}

func TestResultOfUnrelatedError(t *testing.T) {
	if got := ResultOf(errors.New("plain")); got != Unexpected {
		t.Fatalf("ResultOf(plain error) = %v, want Unexpected", got)
	}
}

func TestResultOfNil(t *testing.T) {
	if got := ResultOf(nil); got != Success {
		t.Fatalf("ResultOf(nil) = %v, want Success", got)
	}
}

func TestResultStringCoversEveryValue(t *testing.T) {
	for r := Success; r <= Unexpected; r++ {
		if r.String() == "" {
			t.Errorf("Result(%d).String() is empty", int(r))
		}
	}
}
