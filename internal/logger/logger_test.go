package logger

import (
	"testing"
)

func TestNew_Development(t *testing.T) {
	log, err := New(Options{Debug: true})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}

	// Should not panic
	log.Info("test message")
}

func TestNew_ProductionConsole(t *testing.T) {
	log, err := New(Options{Encoding: "console"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_UnknownEncoding(t *testing.T) {
	if _, err := New(Options{Encoding: "xml"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

