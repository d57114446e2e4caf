package domain

import "errors"

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceClosed    = errors.New("device closed")
	ErrProfileInUse    = errors.New("profile hosted by another process")
	ErrInvalidStatus   = errors.New("invalid device status")
	ErrInvalidSession  = errors.New("invalid session snapshot")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrTransportClosed = errors.New("transport closed")
	ErrStoreClosed     = errors.New("store closed")
)
