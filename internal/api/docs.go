package api

import (
	_ "embed"
	"net/http"
)

//go:embed docs/openapi.yaml
var openAPIDocument []byte

// Docs handles GET /docs
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(openAPIDocument)
}
