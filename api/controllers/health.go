package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
)

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AJShoes-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}
