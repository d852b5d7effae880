package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/ProvChain-Network/provenance_layer/internal/app"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/accounts"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/entities"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// maxBodyBytes caps request bodies; entities are small JSON documents.
const maxBodyBytes = 1 << 20

var (
	errUnsupportedAuthScheme = errors.New("unsupported authorization scheme")
	errRateLimited           = errors.New("rate limit exceeded")
)

// Options tunes the HTTP layer. Zero RateLimit disables throttling.
type Options struct {
	RateLimit float64
	RateBurst int

	// AuditFile, when set, mirrors the in-memory audit trail to a JSONL file.
	AuditFile string
}

type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// NewHandler returns the gateway's HTTP router with token verification,
// rate limiting, metrics and audit middleware applied.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}
	var auditSink auditSink
	if sink != nil {
		auditSink = sink
	}

	h := &handler{
		app:   application,
		log:   log,
		audit: newAuditLog(0, auditSink),
	}

	r := mux.NewRouter()
	r.Use(tokenMiddleware)
	if opts.RateLimit > 0 {
		r.Use(newCallerLimiter(opts.RateLimit, opts.RateBurst).middleware)
	}
	r.Use(metricsMiddleware(application.Metrics))
	r.Use(loggingMiddleware(log))
	r.Use(h.audit.middleware)

	r.HandleFunc("/accounts", h.addAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{address}", h.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}", h.modifyAccount).Methods(http.MethodPut)

	r.HandleFunc("/assets", h.createAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{assetId}", h.getAsset).Methods(http.MethodGet)

	r.HandleFunc("/events", h.createEvent).Methods(http.MethodPost)
	r.HandleFunc("/events", h.findEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}", h.getEvent).Methods(http.MethodGet)

	r.HandleFunc("/bundles/{bundleId}", h.getBundle).Methods(http.MethodGet)
	r.HandleFunc("/bundles/{bundleId}/anchor", h.anchorBundle).Methods(http.MethodPost)

	r.HandleFunc("/token", h.mintToken).Methods(http.MethodPost)
	r.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)

	return r, nil
}

func (h *handler) addAccount(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := accounts.ParseAddAccountRequest(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	acct, err := h.app.Accounts.AddAccount(r.Context(), req, TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	acct, err := h.app.Accounts.GetAccount(r.Context(), address, TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) modifyAccount(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := accounts.ParseModifyAccountRequest(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	acct, err := h.app.Accounts.ModifyAccount(r.Context(), address, req, TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) createAsset(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	asset, err := entities.ParseAsset(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := h.app.Entities.CreateAsset(r.Context(), asset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.app.Metrics.AssetCreated()
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.app.Entities.GetAsset(r.Context(), mux.Vars(r)["assetId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *handler) createEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := entities.ParseEvent(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := h.app.Entities.CreateEvent(r.Context(), event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.app.Metrics.EventCreated()
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.app.Entities.GetEvent(r.Context(), mux.Vars(r)["eventId"], TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *handler) findEvents(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 1 {
			writeServiceError(w, apperrors.NewValidationError(key, "parameter given more than once"))
			return
		}
		params[key] = values[0]
	}

	events, err := h.app.Entities.FindEvents(r.Context(), params, TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []entity.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) getBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.app.Bundles.GetBundle(r.Context(), mux.Vars(r)["bundleId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *handler) anchorBundle(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeServiceError(w, err)
		return
	}

	block, err := h.app.Bundles.RetryAnchor(r.Context(), mux.Vars(r)["bundleId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"blockNumber": block})
}

func (h *handler) mintToken(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload struct {
		Secret     string `json:"secret"`
		ValidUntil int64  `json:"validUntil"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Secret == "" {
		writeServiceError(w, apperrors.RequiredError("secret"))
		return
	}
	if payload.ValidUntil <= time.Now().Unix() {
		writeServiceError(w, apperrors.NewValidationError("validUntil", "must be in the future"))
		return
	}

	secret, err := identity.PrivateKeyFromHex(payload.Secret)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := identity.MintToken(secret, payload.ValidUntil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	encoded, err := identity.EncodeToken(token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": encoded})
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeServiceError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeServiceError(w, apperrors.NewValidationError("limit", "must be an integer"))
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAdmin gates operational endpoints on the account management
// permission of the token creator.
func (h *handler) requireAdmin(r *http.Request) error {
	token := TokenFromContext(r.Context())
	if token == nil {
		return apperrors.NewPermissionError(account.PermChangeAccountPermissions)
	}
	return h.app.Accounts.EnsureHasPermission(r.Context(), token.IDData.CreatedBy, account.PermChangeAccountPermissions)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.IsValidationError(err), apperrors.IsInvalidParameters(err):
		writeError(w, http.StatusBadRequest, err)
	case apperrors.IsPermissionError(err):
		writeError(w, http.StatusForbidden, err)
	case apperrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case apperrors.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
