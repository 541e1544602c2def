package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"veochat-backend/internal/services"
)

// KeyHandler manages the in-memory API key. The key itself never appears
// in a response; clients only see the ready signal.
type KeyHandler struct {
	keys *services.KeyManager
}

func NewKeyHandler(keys *services.KeyManager) *KeyHandler {
	return &KeyHandler{keys: keys}
}

func (h *KeyHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.Status())
}

func (h *KeyHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"api_key": "API key is required"}, r))
		return
	}

	h.keys.Set(key)
	writeJSON(w, http.StatusOK, h.keys.Status())
}

func (h *KeyHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.keys.Clear()
	writeJSON(w, http.StatusOK, h.keys.Status())
}
