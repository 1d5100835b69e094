package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

const maxTokenBodySize = 32 * 1024 // 32KB

// Metrics desacopla los contadores del paquete http para evitar el import
// circular con el router.
type Metrics interface {
	CountTokenIssued(grantType string)
	CountGrantFailure(code string)
}

// TokenController maneja POST /token.
type TokenController struct {
	service *oauth2.Service
	metrics Metrics
}

func NewTokenController(service *oauth2.Service, metrics Metrics) *TokenController {
	return &TokenController{service: service, metrics: metrics}
}

func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "method not allowed"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenBodySize)
	defer r.Body.Close()

	req := oauth2.ParseTokenRequest(r)
	resp, err := c.service.Token(ctx, req)
	if err != nil {
		var oerr *oauth2.Error
		if errors.As(err, &oerr) {
			log.Info("token request rechazado",
				logger.GrantType(req.GrantType), logger.ClientID(req.ClientID),
				logger.Err(err))
			if c.metrics != nil {
				c.metrics.CountGrantFailure(string(oerr.Code))
			}
			writeError(w, oerr)
			return
		}
		log.Error("error interno en token", logger.Err(err))
		writeError(w, oauth2.NewError(oauth2.ErrServerError, ""))
		return
	}

	if c.metrics != nil {
		c.metrics.CountTokenIssued(req.GrantType)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError serializa un error RFC 6749 con su status.
func writeError(w http.ResponseWriter, oerr *oauth2.Error) {
	body := map[string]string{"error": string(oerr.Code)}
	if oerr.Description != "" {
		body["error_description"] = oerr.Description
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(oerr.Status())
	_ = json.NewEncoder(w).Encode(body)
}
