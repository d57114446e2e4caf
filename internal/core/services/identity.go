package services

import (
	"context"
	"fmt"
	"strings"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/pkg/utils"
	"worldview/pkg/validation"
)

// Keys inside a profile's storage partition.
const (
	DeviceIDKey      = "worldview_device_id"
	ActiveSessionKey = "worldview_active_session"
)

// resolveIdentity loads the profile's device id, creating it on first use.
// The id is never rotated; every other field is derived from opts.
func resolveIdentity(ctx context.Context, store ports.KeyValueStore, opts DeviceOptions) (domain.Device, error) {
	raw, err := store.GetOrCreate(ctx, DeviceIDKey, func() ([]byte, error) {
		return []byte(utils.GenerateDeviceID()), nil
	})
	if err != nil {
		return domain.Device{}, fmt.Errorf("failed to resolve device id: %w", err)
	}

	id := strings.TrimSpace(string(raw))
	if err := validation.ValidateDeviceID(id); err != nil {
		return domain.Device{}, fmt.Errorf("stored device id is unusable: %w", err)
	}

	return domain.Device{
		ID:      domain.DeviceID(id),
		Name:    utils.DeviceName(opts.Platform, id),
		Role:    domain.RoleDirector,
		Status:  domain.DeviceReady,
		Battery: opts.Battery,
		Storage: opts.StorageGB,
	}, nil
}
