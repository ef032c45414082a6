package identity_test

import (
	"context"
	"testing"

	"github.com/carsuggester/roadtest/internal/identity"
	"github.com/carsuggester/roadtest/internal/testutil"
)

func TestInstallationID_StableAcrossCalls(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	first, err := identity.InstallationID(ctx, s)
	if err != nil {
		t.Fatalf("InstallationID: %v", err)
	}
	if first == "" {
		t.Fatal("empty installation id")
	}

	for i := 0; i < 10; i++ {
		got, err := identity.InstallationID(ctx, s)
		if err != nil {
			t.Fatalf("InstallationID: %v", err)
		}
		if got != first {
			t.Fatalf("installation id changed: %q then %q", first, got)
		}
	}
}

func TestInstallationID_FreshAfterClear(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	first, err := identity.InstallationID(ctx, s)
	if err != nil {
		t.Fatalf("InstallationID: %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	second, err := identity.InstallationID(ctx, s)
	if err != nil {
		t.Fatalf("InstallationID after clear: %v", err)
	}
	if second == first {
		t.Error("installation id survived a full data clear")
	}
}
