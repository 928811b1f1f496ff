package controllers

import (
	"net/http"

	"zako_server/middleware"
	"zako_server/services"
)

// LikeController handles likes between participants
type LikeController struct {
	requestIdentity
	Likes *services.LikeService
}

// NewLikeController creates a new instance of LikeController
func NewLikeController(sessions *middleware.Sessions, resolver *services.IdentityResolver, likes *services.LikeService) *LikeController {
	return &LikeController{requestIdentity: requestIdentity{Sessions: sessions, Resolver: resolver}, Likes: likes}
}

// Like handles POST /api/likes with user_id and client_uuid
func (c *LikeController) Like(w http.ResponseWriter, r *http.Request) {
	params, identity, err := c.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	targetID, err := services.ParseParticipantID(params.Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := c.Likes.Like(r.Context(), identity, targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "", map[string]interface{}{"newCount": count})
}
