package models

// ResolvedIdentity is the outcome of resolving a request's session token and
// persistent client identifier. Participant is nil when the caller is not registered.
type ResolvedIdentity struct {
	Participant       *Participant
	EffectiveClientID string
}

// Registered reports whether the caller resolved to a stored participant.
func (r ResolvedIdentity) Registered() bool {
	return r.Participant != nil
}

// IsSelf reports whether the given participant ID is the caller's own.
func (r ResolvedIdentity) IsSelf(participantID int64) bool {
	return r.Participant != nil && r.Participant.ID == participantID
}
