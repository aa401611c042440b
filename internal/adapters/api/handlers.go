package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/analyzer"
	"github.com/inboxkit/newsletter-detector/internal/core"
)

// Handler holds dependencies for API handlers
type Handler struct {
	service    *core.DetectionService
	reputation *analyzer.ReputationAnalyzer
	calculator *core.Calculator
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *core.DetectionService, reputation *analyzer.ReputationAnalyzer, calculator *core.Calculator, logger *zap.Logger) *Handler {
	return &Handler{
		service:    service,
		reputation: reputation,
		calculator: calculator,
		logger:     logger,
	}
}

// DetectRequest is the request body for POST /v1/detect
type DetectRequest struct {
	Email  *core.Email `json:"email"`
	UserID string      `json:"userId,omitempty"`
}

// Detect handles POST /v1/detect
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if req.Email == nil || req.Email.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email with an id is required"})
		return
	}

	result, err := h.service.DetectForUser(r.Context(), req.Email, req.UserID)
	if err != nil {
		h.logger.Error("Detection failed", zap.String("email_id", req.Email.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "detection failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Feedback handles POST /v1/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var event core.FeedbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.service.TrackFeedback(r.Context(), &event); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "email not found"})
			return
		}
		h.logger.Error("Failed to track feedback",
			zap.String("email_id", event.EmailID),
			zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// SenderReputationResponse is the response for GET /v1/reputation/{sender}
type SenderReputationResponse struct {
	Sender               string  `json:"sender"`
	ConfidenceScore      float64 `json:"confidenceScore"`
	IsNewsletterProvider bool    `json:"isNewsletterProvider"`
}

// SenderReputation handles GET /v1/reputation/{sender}
func (h *Handler) SenderReputation(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sender is required"})
		return
	}

	score, err := h.reputation.GetSenderConfidenceScore(r.Context(), sender)
	if err != nil {
		h.logger.Error("Reputation lookup failed", zap.String("sender", sender), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reputation lookup failed"})
		return
	}
	isProvider, err := h.reputation.IsSenderNewsletterProvider(r.Context(), sender)
	if err != nil {
		h.logger.Error("Provider check failed", zap.String("sender", sender), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reputation lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, SenderReputationResponse{
		Sender:               sender,
		ConfidenceScore:      score,
		IsNewsletterProvider: isProvider,
	})
}

// WeightRequest is the request body for PUT /v1/config/weights
type WeightRequest struct {
	Method core.DetectionMethod `json:"method"`
	Weight float64              `json:"weight"`
}

// SetWeight handles PUT /v1/config/weights
func (h *Handler) SetWeight(w http.ResponseWriter, r *http.Request) {
	var req WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.calculator.SetMethodWeight(req.Method, req.Weight); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	weights := make(map[core.DetectionMethod]float64, len(core.Methods()))
	for _, method := range core.Methods() {
		weights[method] = h.calculator.Weights().Weight(method)
	}
	writeJSON(w, http.StatusOK, weights)
}

// ThresholdsRequest is the request body for PUT /v1/config/thresholds
type ThresholdsRequest struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// SetThresholds handles PUT /v1/config/thresholds
func (h *Handler) SetThresholds(w http.ResponseWriter, r *http.Request) {
	var req ThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.calculator.SetThresholds(req.Low, req.High); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.calculator.Thresholds())
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
