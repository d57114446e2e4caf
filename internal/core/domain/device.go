package domain

import "fmt"

type DeviceID string

type DeviceRole string

const (
	RoleDirector DeviceRole = "Director"
	RoleCamera   DeviceRole = "Camera"
)

type DeviceStatus string

const (
	DeviceReady     DeviceStatus = "Ready"
	DeviceRecording DeviceStatus = "Recording"
	DeviceSyncing   DeviceStatus = "Syncing"
	DeviceUploading DeviceStatus = "Uploading"
	DeviceError     DeviceStatus = "Error"
)

// ParseDeviceStatus accepts only the statuses a device can report.
func ParseDeviceStatus(s string) (DeviceStatus, error) {
	switch status := DeviceStatus(s); status {
	case DeviceReady, DeviceRecording, DeviceSyncing, DeviceUploading, DeviceError:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Device is one phone or tab taking part in a session.
// Battery is a percentage, Storage is free space in GB.
type Device struct {
	ID      DeviceID     `json:"id"`
	Name    string       `json:"name"`
	Role    DeviceRole   `json:"role"`
	Status  DeviceStatus `json:"status"`
	Battery int          `json:"battery"`
	Storage float64      `json:"storage"`
}

// WithRole returns a copy of the device holding the given role.
func (d Device) WithRole(role DeviceRole) Device {
	d.Role = role
	return d
}

func (d Device) IsDirector() bool {
	return d.Role == RoleDirector
}
