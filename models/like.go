package models

import "time"

// LikeEdge records that the holder of LikerClientID liked a participant.
// At most one edge exists per (LikerClientID, LikedParticipantID).
type LikeEdge struct {
	LikerClientID      string    `dynamodbav:"likerClientId" json:"likerClientId"`            // ✅ Partition Key
	LikedParticipantID int64     `dynamodbav:"likedParticipantId" json:"likedParticipantId"` // ✅ Sort Key, used in GSI
	CreatedAt          time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// CountMismatch reports a participant whose denormalized like count disagrees with its edges.
type CountMismatch struct {
	ParticipantID int64 `json:"participantId"`
	LikeCount     int64 `json:"likeCount"`
	EdgeCount     int64 `json:"edgeCount"`
}

// ✅ Define table name for like edges
const LikeEdgesTable = "LikeEdges"

// ✅ Define GSI Name (used to find every edge pointing at a participant)
const LikedParticipantIndex = "likedParticipantId-index"
