package oauth

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// IntrospectController maneja POST /introspect.
type IntrospectController struct {
	service *oauth2.Service
}

func NewIntrospectController(service *oauth2.Service) *IntrospectController {
	return &IntrospectController{service: service}
}

// Introspect nunca distingue por qué un token no resuelve: la respuesta para
// cualquier token irresoluble es {"active":false} a secas.
func (c *IntrospectController) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Introspect"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "method not allowed"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenBodySize)
	defer r.Body.Close()

	_ = r.ParseForm()
	token := r.PostFormValue("token")
	result := c.service.Introspect(ctx, token)
	if !result.Active {
		log.Debug("introspección de token inactivo")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}
