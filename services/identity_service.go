package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"zako_server/models"
	"zako_server/store"
	"zako_server/telemetry"
)

// IdentityResolver reconciles the session token and the persistent client
// identifier of a request into at most one participant.
type IdentityResolver struct {
	Store store.Store
	Log   *zap.Logger
}

// Resolve looks the caller up by client identifier first, moving a stale
// session token onto the participant it found, then by session token.
// Only store failures are returned as errors; an unknown caller is a
// ResolvedIdentity without a participant.
func (r *IdentityResolver) Resolve(ctx context.Context, sessionToken, clientID string) (models.ResolvedIdentity, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "identity.resolve")
	defer span.End()

	identity := models.ResolvedIdentity{EffectiveClientID: clientID}

	var p *models.Participant
	if clientID != "" {
		found, err := r.Store.ParticipantByClientID(ctx, clientID)
		switch {
		case err == nil:
			p = found
		case !store.IsNotFound(err):
			return identity, storeFailure(err)
		}
	}

	if p != nil && sessionToken != "" && p.SessionToken != sessionToken {
		err := r.Store.RebindSessionToken(ctx, p.ID, sessionToken)
		switch {
		case err == nil:
			p.SessionToken = sessionToken
		case store.IsUniqueViolation(err):
			// another participant holds the token; keep the stale one
			r.logger().Debug("Session token rebind lost a race, keeping stale token",
				zap.Int64("participantId", p.ID),
				zap.String("constraint", store.ConstraintOf(err)))
		case store.IsNotFound(err):
			// deleted between lookup and rebind
			p = nil
		default:
			return identity, storeFailure(err)
		}
	}

	if p == nil && sessionToken != "" {
		found, err := r.Store.ParticipantBySessionToken(ctx, sessionToken)
		switch {
		case err == nil:
			p = found
		case !store.IsNotFound(err):
			return identity, storeFailure(err)
		}
	}

	if p != nil {
		identity.Participant = p
		if identity.EffectiveClientID == "" {
			identity.EffectiveClientID = p.ClientID
		}
		span.SetAttributes(attribute.Int64("participant.id", p.ID))
	}
	span.SetAttributes(attribute.Bool("identity.registered", identity.Registered()))
	return identity, nil
}

func (r *IdentityResolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.L()
	}
	return r.Log
}
