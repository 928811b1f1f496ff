package routes

import (
	"net/http"

	"zako_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up the routes shared by the whole application
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")

	// Known path, wrong verb
	r.MethodNotAllowedHandler = http.HandlerFunc(controllers.MethodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(controllers.NotFound)
}
