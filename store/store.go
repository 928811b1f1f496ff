// Package store defines the persistence contract every backend implements.
//
// All multi-step mutations (CreateParticipant, AddLike, DeleteParticipantByClientID,
// RebindSessionToken) are atomic: they either apply completely or not at all.
// Uniqueness of session tokens, client identifiers and like pairs is enforced by
// the backend and surfaced as KindUniqueViolation.
package store

import (
	"context"

	"zako_server/models"
)

// DeleteResult describes what a participant deletion removed.
type DeleteResult struct {
	ParticipantID int64
	OutgoingEdges int64
	IncomingEdges int64
}

// Store is the persistence contract for participants and like edges.
type Store interface {
	ParticipantByClientID(ctx context.Context, clientID string) (*models.Participant, error)
	ParticipantBySessionToken(ctx context.Context, token string) (*models.Participant, error)
	ParticipantByID(ctx context.Context, id int64) (*models.Participant, error)

	// RebindSessionToken moves a participant onto a new session token in its own transaction.
	RebindSessionToken(ctx context.Context, participantID int64, token string) error

	// CreateParticipant inserts p and fills in its ID and CreatedAt.
	CreateParticipant(ctx context.Context, p *models.Participant) error

	// AddLike inserts the edge and increments the target's like count in one
	// transaction, returning the new count. The liker must still be a
	// participant when the transaction commits; otherwise the error is a
	// not-found on ConstraintLiker.
	AddLike(ctx context.Context, likerClientID string, likedParticipantID int64) (int64, error)

	// DeleteParticipantByClientID removes the participant and every edge touching it.
	// Targets of its outgoing edges have their like counts decremented.
	DeleteParticipantByClientID(ctx context.Context, clientID string) (DeleteResult, error)

	UpdateDisplayName(ctx context.Context, participantID int64, name string) error
	UpdateComment(ctx context.Context, participantID int64, comment string) error

	// ListParticipants returns participants newest first; limit <= 0 means all.
	ListParticipants(ctx context.Context, limit int) ([]models.Participant, error)
	CountParticipants(ctx context.Context) (int64, error)
	LikedParticipantIDs(ctx context.Context, likerClientID string) ([]int64, error)
	LikeEdgesTo(ctx context.Context, participantID int64) (int64, error)
	LikeCountMismatches(ctx context.Context) ([]models.CountMismatch, error)

	Ping(ctx context.Context) error
	Close() error
}
