package models

import "time"

// Participant is one registered visitor.
type Participant struct {
	ID            int64     `dynamodbav:"participantId" json:"id"`
	SessionToken  string    `dynamodbav:"sessionToken" json:"-"`
	ClientID      string    `dynamodbav:"clientId,omitempty" json:"-"` // empty when the visitor never sent one
	DisplayName   string    `dynamodbav:"displayName" json:"nickname"`
	RemoteAddress string    `dynamodbav:"remoteAddress" json:"-"`
	UserAgent     string    `dynamodbav:"userAgent" json:"-"`
	DetectedOS    string    `dynamodbav:"detectedOs" json:"operatingSystem"`
	GeoLocation   string    `dynamodbav:"geoLocation" json:"ipLocation"`
	ISP           string    `dynamodbav:"isp" json:"isp"`
	Comment       string    `dynamodbav:"comment,omitempty" json:"comment,omitempty"`
	LikeCount     int64     `dynamodbav:"likeCount" json:"likesCount"`
	CreatedAt     time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// HasClientID reports whether the participant is bound to a persistent client identifier.
func (p *Participant) HasClientID() bool {
	return p != nil && p.ClientID != ""
}

// ContextMetadata is what gets captured about a visitor at registration time.
type ContextMetadata struct {
	RemoteAddress string
	UserAgent     string
	DetectedOS    string
	GeoLocation   string
	ISP           string
	DisplayName   string
}

// ParticipantView is the public listing shape of a participant.
type ParticipantView struct {
	ID              int64     `json:"id"`
	DisplayName     string    `json:"nickname"`
	MaskedAddress   string    `json:"ipAddress"`
	GeoLocation     string    `json:"ipLocation"`
	ISP             string    `json:"isp"`
	OperatingSystem string    `json:"operatingSystem"`
	Comment         string    `json:"comment,omitempty"`
	LikeCount       int64     `json:"likesCount"`
	CreatedAt       time.Time `json:"createdAt"`
	IsSelf          bool      `json:"isSelf"`
	LikedByMe       bool      `json:"likedByMe"`
}

// ParticipantsTable is the DynamoDB table name for participants
const ParticipantsTable = "Participants"

// UniquesTable holds one guard item per unique session token and client identifier
const UniquesTable = "Uniques"

// CountersTable hands out surrogate participant IDs
const CountersTable = "Counters"
