package fabric

import (
	"errors"
	"testing"
)

func TestToErrorClassification(t *testing.T) {
	cases := []struct {
		code ResultCode
		want error
	}{
		{MaxPositionExceeded, ErrDisconnected},
		{NotConnected, ErrDisconnected},
		{PublicationClosed, ErrDisconnected},
		{ResultCode(-999), ErrFailed},
	}
	for _, c := range cases {
		err := ToError(c.code)
		if !errors.Is(err, c.want) {
			t.Errorf("ToError(%d) = %v, want wrapping %v", c.code, err, c.want)
		}
	}
}

func TestResultCodeClassifiers(t *testing.T) {
	if !BackPressured.IsTransientFailure() || !AdminAction.IsTransientFailure() {
		t.Fatalf("BackPressured and AdminAction must be transient")
	}
	if NotConnected.IsTransientFailure() {
		t.Fatalf("NotConnected must not be treated as transient")
	}
	if !ResultCode(42).IsSuccess() {
		t.Fatalf("a positive position must be a success")
	}
	if BackPressured.IsSuccess() {
		t.Fatalf("BackPressured must not be a success")
	}
}
