package routes

import (
	"zako_server/controllers"
	"zako_server/middleware"
	"zako_server/services"

	"github.com/gorilla/mux"
)

// RegisterProfileRoutes sets up routes for editing the caller's own profile under /api/profile
func RegisterProfileRoutes(r *mux.Router, sessions *middleware.Sessions, resolver *services.IdentityResolver, profileService *services.ProfileService) {
	controller := controllers.NewProfileController(sessions, resolver, profileService)

	r.HandleFunc("/api/profile/name", controller.SetName).Methods("POST")
	r.HandleFunc("/api/profile/comment", controller.SetComment).Methods("POST")
}
