package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tradekit/pair-engine/internal/entity"
	"github.com/tradekit/pair-engine/internal/service/pairstate"
)

type UpdatePairStateRequest struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	State    string `json:"state"`
	Market   bool   `json:"market"`
}

type PairStateResponse struct {
	Exchange      string `json:"exchange"`
	Symbol        string `json:"symbol"`
	State         string `json:"state"`
	Market        bool   `json:"market"`
	Retries       int    `json:"retries"`
	HasOrder      bool   `json:"has_order"`
	ExchangeOrder string `json:"exchange_order_id,omitempty"`
	Time          int64  `json:"time"`
}

type Handler struct {
	pairStates *pairstate.Manager
}

func NewPairStateHTTPHandler(pairStates *pairstate.Manager) *Handler {
	return &Handler{pairStates: pairStates}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/pair-engine/v1/pairs", h.Pairs)
}

func (h *Handler) Pairs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.updatePairState(w, r)
	case http.MethodGet:
		h.listPairStates(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) updatePairState(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req UpdatePairStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if strings.TrimSpace(req.Exchange) == "" || strings.TrimSpace(req.Symbol) == "" || strings.TrimSpace(req.State) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	options := entity.PairStateOptions{Market: req.Market}

	state, err := h.pairStates.Update(r.Context(), req.Exchange, req.Symbol, entity.PairStateName(req.State), options)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrInvalidPairState):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid state"})
		case errors.Is(err, entity.ErrCapitalNotSet):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no capital configured for pair"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusAccepted, mapPairStateToResponse(state))
}

func (h *Handler) listPairStates(w http.ResponseWriter, _ *http.Request) {
	states := h.pairStates.All()

	resp := make([]PairStateResponse, 0, len(states))
	for _, state := range states {
		resp = append(resp, mapPairStateToResponse(state))
	}

	writeJSON(w, http.StatusOK, resp)
}

func mapPairStateToResponse(state *entity.PairState) PairStateResponse {
	resp := PairStateResponse{
		Exchange: state.Exchange,
		Symbol:   state.Symbol,
		State:    string(state.State),
		Market:   state.Options.Market,
		Retries:  state.Retries(),
		HasOrder: state.Order() != nil,
		Time:     state.Time.UnixMilli(),
	}

	if exchangeOrder := state.ExchangeOrder(); exchangeOrder != nil {
		resp.ExchangeOrder = exchangeOrder.ID
	}

	return resp
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
