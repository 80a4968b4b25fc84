package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
)

type UseCase interface {
	FinalizeUpload(ctx context.Context, params FinalizeUploadParams) (entities.FinalizeResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	pinger    Pinger
	cfg       *config.Config
	validator *validator.Validate
	logger    *zap.Logger
}

func New(useCase UseCase, pinger Pinger, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		useCase:   useCase,
		pinger:    pinger,
		cfg:       cfg,
		validator: newValidator(),
		logger:    logger.Named("http"),
	}
}

func (h *Handler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxRequestBytes)

	var params FinalizeUploadParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		var tooLarge *http.MaxBytesError
		msg := "request body must be a JSON object"
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		writeJSONError(w, requestID, entities.KindInvalidRequest, msg, nil)
		return
	}

	if err := h.validator.Struct(params); err != nil {
		writeJSONError(w, requestID, entities.KindInvalidRequest, "invalid request fields", validationErrorsToMap(err))
		return
	}

	params.BearerToken = bearerToken(r)
	params.RequestID = requestID

	ctx := r.Context()
	if timeout := h.cfg.Server.FinalizeTimeout * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := h.useCase.FinalizeUpload(ctx, params)
	if err != nil {
		writeFinalizeError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, FinalizeUploadResponse{Success: true, FinalizeResult: res})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
