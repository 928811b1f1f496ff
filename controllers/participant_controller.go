package controllers

import (
	"net/http"

	"zako_server/middleware"
	"zako_server/services"
	"zako_server/utils"
)

// ParticipantController handles registration, withdrawal and listing
type ParticipantController struct {
	requestIdentity
	Registration *services.RegistrationService
	Deletion     *services.DeletionService
	Listing      *services.ListingService
}

// NewParticipantController creates a new instance of ParticipantController
func NewParticipantController(sessions *middleware.Sessions, resolver *services.IdentityResolver,
	registration *services.RegistrationService, deletion *services.DeletionService, listing *services.ListingService) *ParticipantController {
	return &ParticipantController{
		requestIdentity: requestIdentity{Sessions: sessions, Resolver: resolver},
		Registration:    registration,
		Deletion:        deletion,
		Listing:         listing,
	}
}

// Register handles POST /api/participants/register
func (c *ParticipantController) Register(w http.ResponseWriter, r *http.Request) {
	params, err := utils.ReadParams(r)
	if err != nil {
		writeError(w, invalidParams(err))
		return
	}
	clientID := c.Sessions.ClientID(r, params.Get(middleware.ClientIDParam))

	result, err := c.Registration.Register(r.Context(), services.RegistrationRequest{
		SessionToken:  middleware.SessionToken(r.Context()),
		ClientID:      clientID,
		RemoteAddress: utils.ClientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	c.Sessions.RememberClientID(w, clientID)

	if !utils.WantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	message := "认证成功，欢迎成为Zako!"
	if !result.Created() {
		message = "你已经是Zako了."
	}
	writeSuccess(w, message, map[string]interface{}{
		"created":     result.Created(),
		"participant": result.Participant,
		"redirect":    "/",
	})
}

// Delete handles POST /api/participants/delete
func (c *ParticipantController) Delete(w http.ResponseWriter, r *http.Request) {
	params, err := utils.ReadParams(r)
	if err != nil {
		writeError(w, invalidParams(err))
		return
	}
	if _, err := c.Deletion.Delete(r.Context(), c.Sessions.ClientID(r, params.Get(middleware.ClientIDParam))); err != nil {
		writeError(w, err)
		return
	}
	c.Sessions.ExpireSession(w)
	writeSuccess(w, "您的认证信息已成功删除.", nil)
}

// List handles GET /api/participants?view=recent|all
func (c *ParticipantController) List(w http.ResponseWriter, r *http.Request) {
	params, identity, err := c.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	listing, err := c.Listing.List(r.Context(), identity, params.Get("view"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "", map[string]interface{}{
		"view":         listing.View,
		"count":        listing.Count,
		"participants": listing.Participants,
	})
}

// Me handles GET /api/me
func (c *ParticipantController) Me(w http.ResponseWriter, r *http.Request) {
	_, identity, err := c.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	me, err := c.Listing.Me(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "", map[string]interface{}{
		"registered":  me.Registered,
		"participant": me.Participant,
		"clientUuid":  me.ClientID,
		"likedIds":    me.LikedIDs,
	})
}
