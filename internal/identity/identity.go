// Package identity supplies the stable per-installation user identifier
// every bucketing decision hangs off.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carsuggester/roadtest/internal/store"
)

const settingKey = "installation_id"

// InstallationID returns the persisted installation id, generating and
// storing one on first use. The id survives restarts; only ClearAll
// removes it, after which a fresh identity (and fresh assignments) begin.
func InstallationID(ctx context.Context, s store.Store) (string, error) {
	id, err := s.GetSetting(ctx, settingKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read installation id: %w", err)
	}

	id = uuid.NewString()
	if err := s.SetSetting(ctx, settingKey, id); err != nil {
		return "", fmt.Errorf("failed to persist installation id: %w", err)
	}
	return id, nil
}
