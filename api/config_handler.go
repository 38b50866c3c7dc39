package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/marketquery/marketquery/internal/config"
	"github.com/marketquery/marketquery/pkg/models"
)

// UpdateKeysRequest is the body for PUT /api/v1/config/keys.
type UpdateKeysRequest struct {
	OpenAI                string `json:"openai,omitempty"`
	FinancialModelingPrep string `json:"financialModelingPrep,omitempty"`
	MarketData            string `json:"marketData,omitempty"`
}

// handleGetConfigKeys reports which API keys are configured, masked.
// Raw key material never leaves the server.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}

// handleUpdateConfigKeys persists new API keys. Empty fields keep the
// current value.
func (s *Server) handleUpdateConfigKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	var req UpdateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OpenAI == "" && req.FinancialModelingPrep == "" && req.MarketData == "" {
		writeError(w, http.StatusBadRequest, "at least one key is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	current, _, err := s.keys.LoadKeys(ctx, defaultUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	merged := mergeKeys(current, req)

	if err := s.keys.SaveKeys(ctx, defaultUserID, merged); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Reflect the new keys in the running config so the status endpoint
	// and subsequent engine construction see them.
	if merged.OpenAI != "" {
		s.cfg.LLM.OpenAIKey = merged.OpenAI
	}
	if merged.FinancialModelingPrep != "" {
		s.cfg.MarketData.FMPKey = merged.FinancialModelingPrep
	}
	if merged.MarketData != "" {
		s.cfg.MarketData.MarketDataKey = merged.MarketData
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}

func mergeKeys(current models.APIKeys, req UpdateKeysRequest) models.APIKeys {
	if req.OpenAI != "" {
		current.OpenAI = req.OpenAI
	}
	if req.FinancialModelingPrep != "" {
		current.FinancialModelingPrep = req.FinancialModelingPrep
	}
	if req.MarketData != "" {
		current.MarketData = req.MarketData
	}
	return current
}
