package services

import (
	"context"

	"zako_server/models"
	"zako_server/store"
	"zako_server/utils"
)

// Listing is one page of the public participant list.
type Listing struct {
	View         string                   `json:"view"`
	Count        int64                    `json:"count"`
	Participants []models.ParticipantView `json:"participants"`
}

// Me describes the caller as the server sees them.
type Me struct {
	Registered  bool                `json:"registered"`
	Participant *models.Participant `json:"participant,omitempty"`
	ClientID    string              `json:"clientUuid,omitempty"`
	LikedIDs    []int64             `json:"likedIds"`
}

type ListingService struct {
	Store store.Store
}

// List returns the newest participants ("recent") or all of them ("all"),
// annotated relative to the caller. Unknown views fall back to recent.
func (s *ListingService) List(ctx context.Context, identity models.ResolvedIdentity, view string) (Listing, error) {
	limit := models.RecentListingSize
	if view == models.ViewAll {
		limit = 0
	} else {
		view = models.ViewRecent
	}

	total, err := s.Store.CountParticipants(ctx)
	if err != nil {
		return Listing{}, storeFailure(err)
	}
	participants, err := s.Store.ListParticipants(ctx, limit)
	if err != nil {
		return Listing{}, storeFailure(err)
	}
	liked, err := s.likedSet(ctx, identity)
	if err != nil {
		return Listing{}, err
	}

	views := make([]models.ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, models.ParticipantView{
			ID:              p.ID,
			DisplayName:     p.DisplayName,
			MaskedAddress:   utils.MaskIP(p.RemoteAddress),
			GeoLocation:     p.GeoLocation,
			ISP:             p.ISP,
			OperatingSystem: p.DetectedOS,
			Comment:         p.Comment,
			LikeCount:       p.LikeCount,
			CreatedAt:       p.CreatedAt,
			IsSelf:          identity.IsSelf(p.ID),
			LikedByMe:       liked[p.ID],
		})
	}
	return Listing{View: view, Count: total, Participants: views}, nil
}

// Me reports the resolved caller and what they have liked.
func (s *ListingService) Me(ctx context.Context, identity models.ResolvedIdentity) (Me, error) {
	me := Me{Registered: identity.Registered(), Participant: identity.Participant, ClientID: identity.EffectiveClientID, LikedIDs: []int64{}}
	if !identity.Registered() || !identity.Participant.HasClientID() {
		return me, nil
	}
	ids, err := s.Store.LikedParticipantIDs(ctx, identity.Participant.ClientID)
	if err != nil {
		return Me{}, storeFailure(err)
	}
	me.LikedIDs = ids
	return me, nil
}

func (s *ListingService) likedSet(ctx context.Context, identity models.ResolvedIdentity) (map[int64]bool, error) {
	set := map[int64]bool{}
	if !identity.Registered() || !identity.Participant.HasClientID() {
		return set, nil
	}
	ids, err := s.Store.LikedParticipantIDs(ctx, identity.Participant.ClientID)
	if err != nil {
		return nil, storeFailure(err)
	}
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
