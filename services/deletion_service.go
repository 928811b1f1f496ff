package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"zako_server/metrics"
	"zako_server/store"
	"zako_server/telemetry"
)

type DeletionService struct {
	Store store.Store
	Log   *zap.Logger
}

// Delete removes the participant holding clientID together with every like
// edge touching it. A second call for the same identifier is a not-found error.
func (s *DeletionService) Delete(ctx context.Context, clientID string) (store.DeleteResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "deletion.delete")
	defer span.End()

	clientID = strings.TrimSpace(clientID)
	if err := checkClientID(clientID); err != nil {
		metrics.Deletions.WithLabelValues("rejected").Inc()
		return store.DeleteResult{}, err
	}

	res, err := s.Store.DeleteParticipantByClientID(ctx, clientID)
	if store.IsNotFound(err) {
		metrics.Deletions.WithLabelValues("not_found").Inc()
		return store.DeleteResult{}, errRecordNotFound
	}
	if err != nil {
		metrics.Deletions.WithLabelValues("error").Inc()
		s.logger().Error("Failed to delete participant", zap.Error(err))
		return store.DeleteResult{}, storeFailure(err)
	}

	metrics.Participants.Dec()
	metrics.Deletions.WithLabelValues("deleted").Inc()
	s.logger().Info("Participant withdrew",
		zap.Int64("participantId", res.ParticipantID),
		zap.Int64("outgoingEdges", res.OutgoingEdges),
		zap.Int64("incomingEdges", res.IncomingEdges))
	return res, nil
}

func (s *DeletionService) logger() *zap.Logger {
	if s.Log == nil {
		return zap.L()
	}
	return s.Log
}
