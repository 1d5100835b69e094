package oauth

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// RevokeController maneja POST /revoke.
type RevokeController struct {
	service *oauth2.Service
}

func NewRevokeController(service *oauth2.Service) *RevokeController {
	return &RevokeController{service: service}
}

// Revoke borra el refresh token del client autenticado. Responde 200 con
// body vacío incluso para tokens desconocidos (RFC 7009, idempotente); solo
// un fallo de autenticación del client produce error.
func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Revoke"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "method not allowed"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenBodySize)
	defer r.Body.Close()

	req := oauth2.ParseTokenRequest(r)
	if err := c.service.Revoke(ctx, req); err != nil {
		var oerr *oauth2.Error
		if errors.As(err, &oerr) {
			writeError(w, oerr)
			return
		}
		log.Error("error interno en revoke", logger.Err(err))
		writeError(w, oauth2.NewError(oauth2.ErrServerError, ""))
		return
	}
	w.WriteHeader(http.StatusOK)
}
