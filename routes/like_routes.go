package routes

import (
	"zako_server/controllers"
	"zako_server/middleware"
	"zako_server/services"

	"github.com/gorilla/mux"
)

// RegisterLikeRoutes sets up the like route
func RegisterLikeRoutes(r *mux.Router, sessions *middleware.Sessions, resolver *services.IdentityResolver, likeService *services.LikeService) {
	controller := controllers.NewLikeController(sessions, resolver, likeService)
	r.HandleFunc("/api/likes", controller.Like).Methods("POST")
}
