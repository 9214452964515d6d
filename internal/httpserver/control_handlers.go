package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
)

// handleControl dispatches proxy control messages.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(r)
	if err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}

	msg, err := models.ParseControlMessage(body)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch msg.Type {
	case models.MessageSkipWaiting:
		pruned := s.proxy.SkipWaiting()
		s.logger.Info("Control: skip waiting", zap.Int("pruned", pruned))
		s.writeResponse(w, map[string]interface{}{
			"success": true,
			"pruned":  pruned,
		})

	case models.MessageClearCache:
		cleared := s.proxy.ClearGeneration()
		s.gateway.Clear()
		s.logger.Info("Control: cache cleared", zap.Int("entries", cleared))
		s.writeResponse(w, map[string]interface{}{
			"success": true,
			"cleared": cleared,
		})

	case models.MessageGetCacheInfo:
		info := s.proxy.Info()
		s.writeResponse(w, map[string]interface{}{
			"success":    true,
			"generation": info.Generation,
			"ttl_ms":     info.TTLMs,
		})
	}
}
