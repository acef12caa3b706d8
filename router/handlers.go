// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"pixelflow/platform/router/cache"
	"pixelflow/platform/router/ledger"
	"pixelflow/platform/router/provider"
)

// MaxUploadBytes bounds one multipart upload across all images.
const MaxUploadBytes = 64 << 20

// Server wires the routing engine to HTTP.
type Server struct {
	engine   *Engine
	registry *provider.Registry
	tracker  ledger.UsageTracker
	cache    cache.ResultCache
	auth     *Authenticator
}

// NewServer creates the HTTP handler set around an engine.
func NewServer(engine *Engine, auth *Authenticator) *Server {
	return &Server{
		engine:   engine,
		registry: engine.registry,
		tracker:  engine.tracker,
		cache:    engine.cache,
		auth:     auth,
	}
}

// editResponse is the wire form of a routing decision. Image bytes travel
// base64-encoded.
type editResponse struct {
	RequestID string       `json:"request_id"`
	Outcome   Outcome      `json:"outcome"`
	Provider  provider.ID  `json:"provider,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
	Image     string       `json:"image,omitempty"`
	MIME      string       `json:"mime,omitempty"`
	Metadata  interface{}  `json:"metadata,omitempty"`
	Upgrade   *UpgradeInfo `json:"upgrade,omitempty"`
	Failure   *FailureInfo `json:"failure,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// EditHandler handles POST /api/v1/edit. The request is multipart
// form-data: an "image" file, optional repeated "extra_image" files, and
// task/prompt/quality/target_width/target_height fields.
func (s *Server) EditHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, requestID, err)
		return
	}

	req, err := s.parseEditRequest(r, identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, requestID, err)
		return
	}

	decision, err := s.engine.Route(r.Context(), requestID, *req)
	if err != nil {
		if errors.Is(err, errInvalidRequest) || isValidationError(err) {
			writeError(w, http.StatusBadRequest, requestID, err)
			return
		}
		writeError(w, http.StatusInternalServerError, requestID, err)
		return
	}

	resp := editResponse{
		RequestID: requestID,
		Outcome:   decision.Outcome,
		Provider:  decision.Provider,
		Cached:    decision.Cached,
		Upgrade:   decision.Upgrade,
		Failure:   decision.Failure,
	}
	status := http.StatusOK
	switch decision.Outcome {
	case OutcomeRouted:
		resp.Image = base64.StdEncoding.EncodeToString(decision.Result.Image.Data)
		resp.MIME = decision.Result.Image.MIME
		if len(decision.Result.Metadata) > 0 {
			resp.Metadata = decision.Result.Metadata
		}
	case OutcomeRequiresUpgrade:
		status = http.StatusPaymentRequired
	case OutcomeFailed:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, resp)
}

var errInvalidRequest = errors.New("invalid edit request")

func (s *Server) parseEditRequest(r *http.Request, identity *Identity) (*provider.EditRequest, error) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}

	task := provider.EditTask(r.FormValue("task"))
	if !provider.IsValidTask(string(task)) {
		return nil, fmt.Errorf("%w: unknown task %q", errInvalidRequest, task)
	}

	image, err := formImage(r, "image")
	if err != nil {
		return nil, err
	}

	req := &provider.EditRequest{
		UserID:  identity.UserID,
		Tier:    identity.Tier,
		Task:    task,
		Prompt:  r.FormValue("prompt"),
		Image:   *image,
		Quality: provider.Quality(r.FormValue("quality")),
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["extra_image"] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: extra_image: %v", errInvalidRequest, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: extra_image: %v", errInvalidRequest, err)
			}
			req.ExtraImages = append(req.ExtraImages, provider.ImageRef{
				Data: data,
				MIME: fh.Header.Get("Content-Type"),
			})
		}
	}

	if wStr, hStr := r.FormValue("target_width"), r.FormValue("target_height"); wStr != "" || hStr != "" {
		width, err := strconv.Atoi(wStr)
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("%w: bad target_width", errInvalidRequest)
		}
		height, err := strconv.Atoi(hStr)
		if err != nil || height <= 0 {
			return nil, fmt.Errorf("%w: bad target_height", errInvalidRequest)
		}
		req.TargetSize = &provider.Size{Width: width, Height: height}
	}

	return req, nil
}

func formImage(r *http.Request, field string) (*provider.ImageRef, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s file", errInvalidRequest, field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", errInvalidRequest, field, err)
	}
	return &provider.ImageRef{Data: data, MIME: header.Header.Get("Content-Type")}, nil
}

// usageResponse reports the caller's remaining credits for the period.
type usageResponse struct {
	UserID           string        `json:"user_id"`
	Tier             provider.Tier `json:"tier"`
	BudgetRemaining  int           `json:"budget_remaining"`
	BudgetCapacity   int           `json:"budget_capacity"`
	PremiumRemaining int           `json:"premium_remaining"`
	PremiumCapacity  int           `json:"premium_capacity"`
}

// UsageHandler handles GET /api/v1/usage.
func (s *Server) UsageHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, requestID, err)
		return
	}

	budget, err := s.tracker.Remaining(r.Context(), identity.UserID, identity.Tier, provider.CostBudget)
	if err != nil {
		writeError(w, http.StatusInternalServerError, requestID, err)
		return
	}
	premium, err := s.tracker.Remaining(r.Context(), identity.UserID, identity.Tier, provider.CostPremium)
	if err != nil {
		writeError(w, http.StatusInternalServerError, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		UserID:           identity.UserID,
		Tier:             identity.Tier,
		BudgetRemaining:  budget,
		BudgetCapacity:   ledger.Capacity(identity.Tier, provider.CostBudget),
		PremiumRemaining: premium,
		PremiumCapacity:  ledger.Capacity(identity.Tier, provider.CostPremium),
	})
}

type migrateRequest struct {
	FromUserID string `json:"from_user_id"`
}

// MigrateHandler handles POST /api/v1/usage/migrate. It moves an anonymous
// device's ledger counters and cached results to the signed-in account.
// Only authenticated accounts may absorb anonymous history.
func (s *Server) MigrateHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, requestID, err)
		return
	}
	if identity.Anonymous {
		writeError(w, http.StatusForbidden, requestID, errors.New("migration requires a signed-in account"))
		return
	}

	var body migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, requestID, fmt.Errorf("bad request body: %w", err))
		return
	}
	if body.FromUserID == "" {
		writeError(w, http.StatusBadRequest, requestID, errors.New("from_user_id is required"))
		return
	}
	if body.FromUserID == identity.UserID {
		writeError(w, http.StatusBadRequest, requestID, errors.New("cannot migrate a user onto itself"))
		return
	}

	if err := s.tracker.Migrate(r.Context(), body.FromUserID, identity.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, requestID, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Migrate(r.Context(), body.FromUserID, identity.UserID); err != nil {
			// Ledger moved; a stale cache only costs re-edits.
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "partial",
				"warning": "usage migrated but cached results were not: " + err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
}

// ProvidersStatusHandler handles GET /api/v1/providers/status.
func (s *Server) ProvidersStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.registry.StatusAll(r.Context()),
	})
}

// HealthHandler handles GET /health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pixelflow-router",
	})
}

func isValidationError(err error) bool {
	var perr *provider.Error
	return errors.As(err, &perr) && perr.Code == provider.ErrCodeInvalidInput
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, requestID string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}
