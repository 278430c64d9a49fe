package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// FrontendLogSink stores client error reports. Anonymous callers are allowed.
func FrontendLogSink(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var entry shopapi.FrontendLog
		if err := validators.DecodeJSONBody(r, &entry); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		b.RecordFrontendLog(entry)
		if logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"client_level": entry.Level,
				"client_path":  entry.Path,
			}), "frontend: "+entry.Message)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, responses.OK{OK: true})
	}
}
