package services

import "worldview/internal/core/domain"

type nopMetrics struct{}

func (nopMetrics) MessagePublished(domain.MessageType) {}
func (nopMetrics) MessageReceived(domain.MessageType)  {}
func (nopMetrics) MessageDropped(domain.MessageType)   {}
func (nopMetrics) JoinAttempt()                        {}
func (nopMetrics) JoinOutcome(domain.JoinState)        {}
func (nopMetrics) Replication()                        {}
func (nopMetrics) Restore(string)                      {}
func (nopMetrics) DevicesHosted(int)                   {}
