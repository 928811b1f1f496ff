package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"zako_server/metrics"
	"zako_server/models"
	"zako_server/store"
	"zako_server/telemetry"
)

// RegistrationRequest carries what a registration call knows about the visitor.
type RegistrationRequest struct {
	SessionToken  string
	ClientID      string
	RemoteAddress string
	UserAgent     string
}

// RegistrationResult tells a genuine insert apart from an identity that was
// already registered, by this request's caller or by a concurrent one.
type RegistrationResult struct {
	Outcome     string
	Participant *models.Participant
}

// Created reports whether this call inserted the participant.
func (r RegistrationResult) Created() bool {
	return r.Outcome == models.OutcomeCreated
}

type RegistrationService struct {
	Store    store.Store
	Resolver *IdentityResolver
	Metadata *MetadataCollector
	Log      *zap.Logger
}

// Register creates the participant for req.ClientID exactly once.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (RegistrationResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "registration.register")
	defer span.End()

	req.ClientID = strings.TrimSpace(req.ClientID)
	if err := checkClientID(req.ClientID); err != nil {
		metrics.Registrations.WithLabelValues("rejected").Inc()
		return RegistrationResult{}, err
	}

	identity, err := s.Resolver.Resolve(ctx, req.SessionToken, req.ClientID)
	if err != nil {
		return RegistrationResult{}, err
	}
	if identity.Registered() {
		metrics.Registrations.WithLabelValues(models.OutcomeAlreadyExists).Inc()
		return RegistrationResult{Outcome: models.OutcomeAlreadyExists, Participant: identity.Participant}, nil
	}

	meta := s.Metadata.Collect(ctx, req.RemoteAddress, req.UserAgent)
	p := &models.Participant{
		SessionToken:  req.SessionToken,
		ClientID:      req.ClientID,
		DisplayName:   meta.DisplayName,
		RemoteAddress: meta.RemoteAddress,
		UserAgent:     meta.UserAgent,
		DetectedOS:    meta.DetectedOS,
		GeoLocation:   meta.GeoLocation,
		ISP:           meta.ISP,
	}

	err = s.Store.CreateParticipant(ctx, p)
	if store.IsUniqueViolation(err) {
		return s.absorbConflict(ctx, req, err), nil
	}
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		s.logger().Error("Failed to register participant", zap.Error(err))
		return RegistrationResult{}, storeFailure(err)
	}

	metrics.Participants.Inc()
	metrics.Registrations.WithLabelValues(models.OutcomeCreated).Inc()
	s.logger().Info("Participant registered", zap.Int64("participantId", p.ID), zap.String("os", p.DetectedOS))
	return RegistrationResult{Outcome: models.OutcomeCreated, Participant: p}, nil
}

// absorbConflict turns a lost insert race into success against the row that won.
func (s *RegistrationService) absorbConflict(ctx context.Context, req RegistrationRequest, cause error) RegistrationResult {
	constraint := store.ConstraintOf(cause)
	s.logger().Info("Registration raced a concurrent insert, reusing existing participant",
		zap.String("constraint", constraint))
	metrics.Registrations.WithLabelValues(models.OutcomeAlreadyExists).Inc()

	var (
		existing *models.Participant
		err      error
	)
	if constraint == store.ConstraintSessionToken {
		existing, err = s.Store.ParticipantBySessionToken(ctx, req.SessionToken)
	} else {
		existing, err = s.Store.ParticipantByClientID(ctx, req.ClientID)
	}
	if err != nil {
		s.logger().Debug("Winning participant not readable", zap.Error(err))
		existing = nil
	}
	return RegistrationResult{Outcome: models.OutcomeAlreadyExists, Participant: existing}
}

func (s *RegistrationService) logger() *zap.Logger {
	if s.Log == nil {
		return zap.L()
	}
	return s.Log
}
