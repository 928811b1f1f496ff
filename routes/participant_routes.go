package routes

import (
	"zako_server/controllers"
	"zako_server/middleware"
	"zako_server/services"

	"github.com/gorilla/mux"
)

// RegisterParticipantRoutes sets up registration, withdrawal and listing routes under /api/participants
func RegisterParticipantRoutes(r *mux.Router, sessions *middleware.Sessions, resolver *services.IdentityResolver,
	registration *services.RegistrationService, deletion *services.DeletionService, listing *services.ListingService) {
	controller := controllers.NewParticipantController(sessions, resolver, registration, deletion, listing)

	// Full paths on r: routes inside a PathPrefix subrouter lose the 405 for a wrong verb
	r.HandleFunc("/api/participants", controller.List).Methods("GET")
	r.HandleFunc("/api/participants/register", controller.Register).Methods("POST")
	r.HandleFunc("/api/participants/delete", controller.Delete).Methods("POST")

	r.HandleFunc("/api/me", controller.Me).Methods("GET")
}
