package services

import (
	"context"
	"encoding/json"
	"errors"

	"worldview/internal/core/domain"
	"worldview/pkg/utils"
)

// Restore outcomes reported to metrics.
const (
	RestoreNone      = "none"
	RestoreRestored  = "restored"
	RestoreDiscarded = "discarded"
	RestoreFailed    = "failed"
)

func (s *deviceService) createSession(ctx context.Context) domain.SessionID {
	director := s.device.WithRole(domain.RoleDirector)
	s.device = &director

	session := domain.NewSession(domain.SessionID(utils.GenerateSessionCode()), director, utils.Now())
	s.session = &session
	s.joinState = domain.JoinNone

	s.openScope(ctx, session.ID)
	s.replicate(ctx)

	s.logger.Infow("Session created", "session_id", session.ID)
	return session.ID
}

// replicate persists the current snapshot and broadcasts it. A snapshot
// that could not be persisted is still broadcast.
func (s *deviceService) replicate(ctx context.Context) {
	s.persist(ctx)
	s.broadcast(ctx)
	s.metrics.Replication()
}

func (s *deviceService) persist(ctx context.Context) {
	data, err := json.Marshal(*s.session)
	if err != nil {
		s.logger.Errorw("Failed to encode session", "session_id", s.session.ID, "error", err)
		return
	}
	if err := s.store.Save(ctx, ActiveSessionKey, data); err != nil {
		s.logger.Warnw("Failed to persist session", "session_id", s.session.ID, "error", err)
	}
}

func (s *deviceService) broadcast(ctx context.Context) {
	s.publish(ctx, domain.SessionUpdate(*s.session))
}

// restore adopts the last snapshot this profile persisted as Director.
func (s *deviceService) restore(ctx context.Context) {
	data, err := s.store.Load(ctx, ActiveSessionKey)
	if errors.Is(err, domain.ErrKeyNotFound) {
		s.metrics.Restore(RestoreNone)
		return
	}
	if err != nil {
		s.logger.Warnw("Failed to load persisted session", "error", err)
		s.metrics.Restore(RestoreFailed)
		return
	}

	session, err := domain.DecodeSession(data)
	if err != nil {
		s.logger.Warnw("Discarding unreadable persisted session", "error", err)
		if err := s.store.Delete(ctx, ActiveSessionKey); err != nil {
			s.logger.Warnw("Failed to delete persisted session", "error", err)
		}
		s.metrics.Restore(RestoreDiscarded)
		return
	}

	s.session = &session
	s.openScope(ctx, session.ID)
	s.replicate(ctx)
	s.metrics.Restore(RestoreRestored)
	s.logger.Infow("Session restored", "session_id", session.ID, "devices", len(session.Devices))
}

func (s *deviceService) handleDirectorMessage(ctx context.Context, msg domain.Message) {
	switch msg.Type {
	case domain.MessageJoinRequest:
		joining := *msg.Device
		if joining.ID == "" {
			s.logger.Warnw("Dropping join request without device id", "session_id", s.session.ID)
			return
		}
		next, added := s.session.WithDevice(joining)
		if !added {
			s.broadcast(ctx)
			return
		}
		s.logger.Infow("Device joined", "session_id", s.session.ID, "joined_id", joining.ID, "name", joining.Name)
		s.apply(ctx, next, true)

	case domain.MessageHeartbeatRequest:
		s.broadcast(ctx)

	case domain.MessageRecordingAdded:
		rec := *msg.Recording
		if rec.ID == "" || s.session.HasRecording(rec.ID) {
			return
		}
		s.apply(ctx, s.session.WithRecording(rec), true)

	case domain.MessageSessionUpdate:
		s.logger.Debugw("Ignoring session update on director scope", "session_id", s.session.ID)
	}
}
