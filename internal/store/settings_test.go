package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ticketflow/backend/internal/models"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Billing":      "billing",
		"  general  ":  "general",
		"two words":    "two_words",
		"MiXeD Case K": "mixed_case_k",
		"   ":          "",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddCategoryAndOrder(t *testing.T) {
	s := NewSettingsStore(t.TempDir())
	ctx := context.Background()

	if err := s.AddCategory(ctx, "Billing", models.CategoryDefinition{Name: "Billing", GroupID: "g1", ArchiveGroupID: "g2"}); err != nil {
		t.Fatalf("add billing: %v", err)
	}
	if err := s.AddCategory(ctx, "support", models.CategoryDefinition{Name: "Support", GroupID: "g3", ArchiveGroupID: "g4"}); err != nil {
		t.Fatalf("add support: %v", err)
	}

	keys, defs, err := s.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(keys) != 2 || keys[0] != "billing" || keys[1] != "support" {
		t.Fatalf("expected registration order [billing support], got %v", keys)
	}
	if defs["billing"].GroupID != "g1" {
		t.Fatalf("unexpected billing definition: %+v", defs["billing"])
	}
}

func TestAddCategoryDuplicate(t *testing.T) {
	s := NewSettingsStore(t.TempDir())
	ctx := context.Background()

	def := models.CategoryDefinition{Name: "Billing", GroupID: "g1", ArchiveGroupID: "g2"}
	if err := s.AddCategory(ctx, "billing", def); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := s.AddCategory(ctx, "BILLING", def)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAddCategoryInvalid(t *testing.T) {
	s := NewSettingsStore(t.TempDir())
	ctx := context.Background()

	if err := s.AddCategory(ctx, "   ", models.CategoryDefinition{GroupID: "g1", ArchiveGroupID: "g2"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty key, got %v", err)
	}
	if err := s.AddCategory(ctx, "x", models.CategoryDefinition{GroupID: "g1"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing archive group, got %v", err)
	}
	if err := s.AddCategory(ctx, "x", models.CategoryDefinition{GroupID: "g1", ArchiveGroupID: "g1"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for identical groups, got %v", err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := NewSettingsStore(t.TempDir())
	doc, err := s.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings on empty dir: %v", err)
	}
	if doc.TicketNamePrefix != "ticket-" {
		t.Fatalf("expected default prefix, got %q", doc.TicketNamePrefix)
	}
	if doc.Categories == nil {
		t.Fatalf("expected non-nil categories map")
	}
}

func TestCategoryNotFound(t *testing.T) {
	s := NewSettingsStore(t.TempDir())
	if _, err := s.Category(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
