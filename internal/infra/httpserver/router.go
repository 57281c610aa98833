package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/stackguard/template-validator/internal/application/ai"
	appexc "github.com/stackguard/template-validator/internal/application/exceptions"
	appvalidate "github.com/stackguard/template-validator/internal/application/validate"
	domai "github.com/stackguard/template-validator/internal/domain/ai"
	domexc "github.com/stackguard/template-validator/internal/domain/exceptions"
	"github.com/stackguard/template-validator/internal/middleware"
)

// errInvalidJSON is surfaced verbatim to callers; CI integrations match
// on this exact message.
var errInvalidJSON = errors.New("Invalid JSON provided in request")

type Router struct {
	validateSvc *appvalidate.Service
	excSvc      *appexc.Service
	aiSvc       *appai.Service
}

func NewRouter(validateSvc *appvalidate.Service, excSvc *appexc.Service, aiSvc *appai.Service, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{validateSvc: validateSvc, excSvc: excSvc, aiSvc: aiSvc}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	if len(checkers) > 0 {
		mux.Get("/health", middleware.HealthHandler(checkers))
	} else {
		mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	}
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/validate", r.wrap(r.handleValidate))
		rt.Post("/exceptions", r.wrap(r.handleRequestExceptions))
		rt.Post("/exceptions/approve", r.wrap(r.handleApproveException))
		rt.Post("/exceptions/delete", r.wrap(r.handleDeleteException))
		rt.Post("/ai/summary", r.wrap(r.handleAISummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domexc.ErrNotFound):
				writeMessage(w, http.StatusInternalServerError, "No matching request found to approve")
			case errors.Is(err, domai.ErrQuotaExceeded):
				writeMessage(w, http.StatusTooManyRequests, "ai quota exceeded")
			default:
				writeMessage(w, http.StatusInternalServerError, err.Error())
			}
		}
	}
}

// POST /v1/validate
// Body: {"accountId": "...", "templates": [{"filename": "...", "template": "..."}]}
func (r *Router) handleValidate(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		AccountID *string `json:"accountId"`
		Templates []struct {
			Filename *string `json:"filename"`
			Template *string `json:"template"`
		} `json:"templates"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidJSON
	}
	if body.Templates == nil {
		return fmt.Errorf("Malformed request body, missing elements: templates")
	}

	cmd := appvalidate.Command{AccountProvided: body.AccountID != nil}
	if body.AccountID != nil {
		cmd.AccountID = *body.AccountID
	}
	for _, tpl := range body.Templates {
		if tpl.Filename == nil {
			return fmt.Errorf("Malformed request body, missing elements: filename")
		}
		if tpl.Template == nil {
			return fmt.Errorf("Malformed request body, missing elements: template")
		}
		cmd.Templates = append(cmd.Templates, appvalidate.Template{
			Filename: *tpl.Filename,
			Template: *tpl.Template,
		})
	}

	middleware.IncrementValidations()
	res, err := r.validateSvc.Validate(req.Context(), cmd)
	if err != nil {
		middleware.IncrementValidationsFailed()
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/exceptions
// Body: list of {"awsAccountId", "filename", "ruleId", "requestReason", "requestedBy"}
func (r *Router) handleRequestExceptions(w http.ResponseWriter, req *http.Request) error {
	var body []appexc.SubmitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidJSON
	}

	if err := r.excSvc.Submit(req.Context(), body); err != nil {
		return err
	}
	writeMessage(w, http.StatusCreated, "")
	return nil
}

// POST /v1/exceptions/approve
func (r *Router) handleApproveException(w http.ResponseWriter, req *http.Request) error {
	var body appexc.ApproveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidJSON
	}

	if err := r.excSvc.Approve(req.Context(), body); err != nil {
		return err
	}
	writeMessage(w, http.StatusCreated, "")
	return nil
}

// POST /v1/exceptions/delete
// Deleting a request that does not exist still returns 200.
func (r *Router) handleDeleteException(w http.ResponseWriter, req *http.Request) error {
	var body appexc.DeleteRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidJSON
	}

	if err := r.excSvc.Delete(req.Context(), body); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "")
	return nil
}

// POST /v1/ai/summary
// Body: {"results": "<rendered bucket list JSON>"}
func (r *Router) handleAISummary(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		writeMessage(w, http.StatusServiceUnavailable, "ai summary is not configured")
		return nil
	}

	var body struct {
		Results string `json:"results"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errInvalidJSON
	}
	if body.Results == "" {
		return fmt.Errorf("results is required")
	}

	summary, err := r.aiSvc.Summarize(req.Context(), body.Results)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
