package services

import (
	"context"
	"errors"

	"worldview/internal/core/domain"
	"worldview/pkg/utils"
)

// joinSession turns the device into a Camera of id with a provisional
// session holding only itself, then starts announcing it to the Director.
func (s *deviceService) joinSession(ctx context.Context, id domain.SessionID) {
	camera := s.device.WithRole(domain.RoleCamera)
	s.device = &camera

	shell := domain.NewSession(id, camera, utils.Now())
	s.session = &shell
	s.joinState = domain.JoinJoining

	// a Camera must not come back as Director of an older session
	if err := s.store.Delete(ctx, ActiveSessionKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.logger.Warnw("Failed to clear persisted session", "error", err)
	}

	s.openScope(ctx, id)
	s.logger.Infow("Joining session", "session_id", id)
}

func (s *deviceService) scheduleJoin(gen uint64) {
	for i, delay := range s.opts.RetryDelays {
		attempt := i + 1
		s.timers = append(s.timers, s.after(delay, gen, func() {
			s.sendJoinRequest(attempt)
		}))
	}
	if s.opts.JoinTimeout > 0 {
		s.timers = append(s.timers, s.after(s.opts.JoinTimeout, gen, s.expireJoin))
	}
}

func (s *deviceService) sendJoinRequest(attempt int) {
	s.publish(s.ctx, domain.JoinRequest(*s.device))
	s.metrics.JoinAttempt()
	s.logger.Debugw("Join request sent", "session_id", s.session.ID, "attempt", attempt)
}

func (s *deviceService) expireJoin() {
	if s.joinState != domain.JoinJoining {
		return
	}
	s.joinState = domain.JoinFailed
	s.metrics.JoinOutcome(domain.JoinFailed)
	s.logger.Warnw("No session update from director", "session_id", s.session.ID, "timeout", s.opts.JoinTimeout)
}

func (s *deviceService) scheduleHeartbeat(gen uint64) {
	if s.opts.HeartbeatInterval <= 0 {
		return
	}
	s.heartbeat = s.after(s.opts.HeartbeatInterval, gen, func() {
		s.publish(s.ctx, domain.HeartbeatRequest())
		s.scheduleHeartbeat(gen)
	})
}

// handleCameraMessage applies the Director's snapshots. Everything else on
// the scope is addressed to the Director. The Camera counts as joined only
// once a snapshot lists it.
func (s *deviceService) handleCameraMessage(msg domain.Message) {
	if msg.Type != domain.MessageSessionUpdate {
		return
	}
	if s.sub == nil || msg.Session.ID != s.sub.SessionID() {
		return
	}

	if err := msg.Session.Validate(); err != nil {
		s.logger.Warnw("Ignoring malformed session update", "error", err)
		return
	}

	snapshot := msg.Session.Clone()
	s.session = &snapshot

	self, ok := snapshot.Device(s.device.ID)
	if !ok {
		// the Director has not admitted us yet; announce again and keep the
		// join timeout running
		s.publish(s.ctx, domain.JoinRequest(*s.device))
		s.logger.Debugw("Session update without this device", "session_id", snapshot.ID, "join_state", s.joinState)
		return
	}
	s.device.Status = self.Status

	if s.joinState != domain.JoinJoined {
		s.joinState = domain.JoinJoined
		s.metrics.JoinOutcome(domain.JoinJoined)
		s.logger.Infow("Joined session", "session_id", snapshot.ID, "devices", len(snapshot.Devices))
	}
}
