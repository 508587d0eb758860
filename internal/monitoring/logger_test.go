package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("tick complete: %d tracks", 3)
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil func.
	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf should never be nil")
	}
	Logf("should not panic")

	called = false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("redirect works again")
	if !called {
		t.Error("logger was not restored after no-op")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("session %s: %d live tracks", "v1", 2)
}
