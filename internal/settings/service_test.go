package settings

import (
	"context"
	"testing"
)

func TestCurrent_FallsBackToDefaults(t *testing.T) {
	s := NewService(NewMemoryRepo(), 500, 300)
	got, err := s.Current(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.CoinPrice != 500 || got.DurationSeconds != 300 {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestUpdate_ThenCurrentReturnsStored(t *testing.T) {
	s := NewService(NewMemoryRepo(), 500, 300)
	if _, err := s.Update(context.Background(), 750, 600, "admin-1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Current(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.CoinPrice != 750 || got.DurationSeconds != 600 {
		t.Fatalf("expected stored settings, got %+v", got)
	}
	if got.UpdatedBy != "admin-1" {
		t.Fatalf("expected updated_by admin-1, got %q", got.UpdatedBy)
	}
}

func TestUpdate_RejectsNonPositiveValues(t *testing.T) {
	s := NewService(NewMemoryRepo(), 500, 300)
	if _, err := s.Update(context.Background(), 0, 300, "admin-1"); err != ErrInvalidSettings {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if _, err := s.Update(context.Background(), 500, -1, "admin-1"); err != ErrInvalidSettings {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}
