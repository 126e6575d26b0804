package logging

import "testing"

func TestNewValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := New(level)
			if err != nil {
				t.Fatalf("New(%q): %v", level, err)
			}
			if logger == nil {
				t.Fatal("expected a logger")
			}
			logger.Sync()
		})
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New("shouting"); err == nil {
		t.Error("expected error for unknown level")
	}
}
