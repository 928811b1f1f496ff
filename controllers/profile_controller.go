package controllers

import (
	"net/http"

	"zako_server/middleware"
	"zako_server/services"
)

// ProfileController handles edits to the caller's own profile
type ProfileController struct {
	requestIdentity
	Profile *services.ProfileService
}

// NewProfileController creates a new instance of ProfileController
func NewProfileController(sessions *middleware.Sessions, resolver *services.IdentityResolver, profile *services.ProfileService) *ProfileController {
	return &ProfileController{requestIdentity: requestIdentity{Sessions: sessions, Resolver: resolver}, Profile: profile}
}

// SetName handles POST /api/profile/name
func (c *ProfileController) SetName(w http.ResponseWriter, r *http.Request) {
	params, identity, err := c.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := c.Profile.SetDisplayName(r.Context(), identity, params.Get("nickname"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "昵称更新成功!", map[string]interface{}{"nickname": name})
}

// SetComment handles POST /api/profile/comment
func (c *ProfileController) SetComment(w http.ResponseWriter, r *http.Request) {
	params, identity, err := c.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	comment, err := c.Profile.SetComment(r.Context(), identity, params.Get("comment"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "留言更新成功!", map[string]interface{}{"comment": comment})
}
