package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"zako_server/metrics"
	"zako_server/models"
	"zako_server/store"
	"zako_server/telemetry"
)

type LikeService struct {
	Store store.Store
	Log   *zap.Logger
}

// Like records that the caller likes targetID and returns the target's new count.
// Checks run in order: target exists, caller registered, not a self like.
// The edge is keyed by the caller's stored client identifier.
func (s *LikeService) Like(ctx context.Context, identity models.ResolvedIdentity, targetID int64) (int64, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "like.like")
	defer span.End()
	span.SetAttributes(attribute.Int64("target.id", targetID))

	count, err := s.like(ctx, identity, targetID)
	outcome := "liked"
	if err != nil {
		outcome = CodeOf(err)
	}
	metrics.Likes.WithLabelValues(outcome).Inc()
	return count, err
}

func (s *LikeService) like(ctx context.Context, identity models.ResolvedIdentity, targetID int64) (int64, error) {
	if targetID <= 0 {
		return 0, errInvalidParams
	}
	target, err := s.Store.ParticipantByID(ctx, targetID)
	if store.IsNotFound(err) {
		return 0, errTargetNotFound
	}
	if err != nil {
		return 0, storeFailure(err)
	}

	if !identity.Registered() || !identity.Participant.HasClientID() {
		return 0, errUnauthorized
	}
	liker := identity.Participant
	if liker.ID == target.ID || (target.HasClientID() && target.ClientID == liker.ClientID) {
		return 0, errSelfLike
	}

	count, err := s.Store.AddLike(ctx, liker.ClientID, target.ID)
	switch {
	case err == nil:
		s.logger().Debug("Like recorded", zap.Int64("likerId", liker.ID), zap.Int64("targetId", target.ID), zap.Int64("count", count))
		return count, nil
	case store.IsUniqueViolation(err):
		return 0, errAlreadyLiked
	case store.IsNotFound(err) && store.ConstraintOf(err) == store.ConstraintLiker:
		// deleted after the identity was resolved
		return 0, errUnauthorized
	case store.IsNotFound(err):
		return 0, errTargetNotFound
	default:
		s.logger().Error("Failed to record like", zap.Int64("targetId", target.ID), zap.Error(err))
		return 0, storeFailure(err)
	}
}

func (s *LikeService) logger() *zap.Logger {
	if s.Log == nil {
		return zap.L()
	}
	return s.Log
}
