package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"zako_server/models"
	"zako_server/store"
	"zako_server/telemetry"
)

// ProfileService edits the caller's own display name and comment.
// Updates are last-writer-wins.
type ProfileService struct {
	Store store.Store
	Log   *zap.Logger
}

// normalize trims and composes s so that lengths count what a user sees.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (s *ProfileService) SetDisplayName(ctx context.Context, identity models.ResolvedIdentity, name string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "profile.set_display_name")
	defer span.End()

	if !identity.Registered() {
		return "", errUnauthorized
	}
	name = normalize(name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return "", errNameEmpty
	case n > models.MaxDisplayNameLength:
		return "", errNameTooLong
	}
	if err := s.Store.UpdateDisplayName(ctx, identity.Participant.ID, name); err != nil {
		return "", s.updateFailed(err)
	}
	return name, nil
}

// SetComment stores comment; an empty comment clears it.
func (s *ProfileService) SetComment(ctx context.Context, identity models.ResolvedIdentity, comment string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "profile.set_comment")
	defer span.End()

	if !identity.Registered() {
		return "", errUnauthorized
	}
	comment = normalize(comment)
	if utf8.RuneCountInString(comment) > models.MaxCommentLength {
		return "", errCommentTooLong
	}
	if err := s.Store.UpdateComment(ctx, identity.Participant.ID, comment); err != nil {
		return "", s.updateFailed(err)
	}
	return comment, nil
}

func (s *ProfileService) updateFailed(err error) error {
	if store.IsNotFound(err) {
		// resolved a moment ago, deleted since
		return errUnauthorized
	}
	if s.Log != nil {
		s.Log.Error("Failed to update profile", zap.Error(err))
	}
	return storeFailure(err)
}
