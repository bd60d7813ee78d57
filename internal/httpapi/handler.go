package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/auth"
	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/notify"
	"github.com/AbduElrahman2001/BALHA/internal/queue"
	"github.com/AbduElrahman2001/BALHA/internal/session"

	"github.com/pkg/errors"
)

// Queue is the part of queue.Manager the API drives.
type Queue interface {
	Register(ctx context.Context, input queue.RegisterInput) (models.Turn, error)
	Complete(ctx context.Context, id int64) (models.Turn, error)
	Cancel(ctx context.Context, id int64) (models.Turn, error)
	Renumber(ctx context.Context) error
	Status(id int64) (models.Turn, error)
	FindActiveByMobile(mobile string) (models.Turn, bool)
	ListWaiting() []models.Turn
	History() []models.Turn
	Stats() queue.Stats
}

// Sessions hands out per-device customer sessions. Release is called when a
// request is done with a device.
type Sessions interface {
	Customer(ctx context.Context, deviceID string) (*session.Customer, error)
	Lookup(ctx context.Context, deviceID string) (*session.Customer, bool, error)
	Release(deviceID string)
}

type Gate interface {
	Login(ctx context.Context, username, password string) (models.Session, error)
	Logout(ctx context.Context) error
	Authenticate(ctx context.Context, sessionID string) (models.Session, error)
}

type Notifier interface {
	Send(ctx context.Context, req notify.Request) (notify.Notification, error)
}

type Handler struct {
	queue    Queue
	sessions Sessions
	gate     Gate
	notifier Notifier
	metrics  http.Handler
}

type Options struct {
	Sessions Sessions
	Gate     Gate
	Notifier Notifier
	Metrics  http.Handler
}

type registerRequest struct {
	CustomerName string `json:"customer_name"`
	MobileNumber string `json:"mobile_number"`
	ServiceType  string `json:"service_type"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type notificationRequest struct {
	TurnID      int64  `json:"turn_id"`
	SenderPhone string `json:"sender_phone"`
	Message     string `json:"message"`
}

// publicTurn is what unauthenticated lookups may see of someone's turn.
type publicTurn struct {
	TurnNumber  int       `json:"turn_number"`
	Status      string    `json:"status"`
	ServiceType string    `json:"service_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPublicTurn(turn models.Turn) publicTurn {
	return publicTurn{
		TurnNumber:  turn.TurnNumber,
		Status:      turn.Status,
		ServiceType: turn.ServiceType,
		CreatedAt:   turn.CreatedAt,
	}
}

type historyResponse struct {
	Turns []models.Turn `json:"turns"`
	Stats queue.Stats   `json:"stats"`
}

type queueResponse struct {
	Turns []models.Turn `json:"turns"`
	Count int           `json:"count"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(q Queue, options Options) *Handler {
	return &Handler{
		queue:    q,
		sessions: options.Sessions,
		gate:     options.Gate,
		notifier: options.Notifier,
		metrics:  options.Metrics,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/turns", h.handleRegister)
	mux.HandleFunc("/api/turns/active", h.handleActiveTurn)
	mux.HandleFunc("/api/turns/", h.handleTurnActions)
	mux.HandleFunc("/api/session/turn", h.handleSessionTurn)
	mux.HandleFunc("/api/session/turn/cancel", h.handleSessionCancel)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/session", h.handleCurrentSession)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/history", h.handleHistory)
	mux.HandleFunc("/api/queue/actions/renumber", h.handleRenumber)
	mux.HandleFunc("/api/notifications", h.handleNotifications)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, models.Services)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req registerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.ServiceType = strings.TrimSpace(req.ServiceType)

	if req.CustomerName == "" || req.MobileNumber == "" || req.ServiceType == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "customer_name, mobile_number, and service_type are required")
		return
	}
	if !isValidPhone(req.MobileNumber) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "mobile_number must be 8-16 digits")
		return
	}
	if _, ok := models.LookupService(req.ServiceType); !ok {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown service_type")
		return
	}

	input := queue.RegisterInput{
		CustomerName: req.CustomerName,
		MobileNumber: req.MobileNumber,
		ServiceType:  req.ServiceType,
	}

	var (
		turn models.Turn
		err  error
	)
	if deviceID := deviceIDFromRequest(r); deviceID != "" && h.sessions != nil {
		customer, custErr := h.sessions.Customer(r.Context(), deviceID)
		if custErr != nil {
			writeMappedError(w, requestID, custErr)
			return
		}
		defer h.sessions.Release(deviceID)
		turn, err = customer.Take(r.Context(), input)
	} else {
		turn, err = h.queue.Register(r.Context(), input)
	}
	if err != nil {
		writeMappedError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// handleActiveTurn looks up the waiting turn of a mobile number and returns
// its public view. With a device header and the matching turn_id the device's
// session is re-pointed at the turn and the full turn is returned.
func (h *Handler) handleActiveTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()

	mobile := strings.TrimSpace(query.Get("mobile"))
	if mobile == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "mobile is required")
		return
	}

	if rawID := strings.TrimSpace(query.Get("turn_id")); rawID != "" {
		turnID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || turnID <= 0 {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "turn_id must be a positive integer")
			return
		}
		deviceID := deviceIDFromRequest(r)
		if deviceID == "" || h.sessions == nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "X-Device-ID header is required")
			return
		}
		customer, err := h.sessions.Customer(r.Context(), deviceID)
		if err != nil {
			writeMappedError(w, requestID, err)
			return
		}
		defer h.sessions.Release(deviceID)
		turn, found, err := customer.RestoreByMobile(r.Context(), mobile, turnID)
		if err != nil {
			writeMappedError(w, requestID, err)
			return
		}
		if !found {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, turn)
		return
	}

	turn, found := h.queue.FindActiveByMobile(mobile)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toPublicTurn(turn))
}

func (h *Handler) handleTurnActions(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/turns/"), "/")
	parts := strings.Split(rest, "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "turn id must be a positive integer")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		turn, err := h.queue.Status(id)
		if err != nil {
			writeMappedError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, toPublicTurn(turn))
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var turn models.Turn
		switch parts[2] {
		case "complete":
			turn, err = h.queue.Complete(r.Context(), id)
		case "cancel":
			turn, err = h.queue.Cancel(r.Context(), id)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			writeMappedError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, turn)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleSessionTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customer, release, ok := h.customerFromRequest(w, r)
	if !ok {
		return
	}
	defer release()
	turn, err := customer.Check(r.Context())
	if err != nil {
		writeMappedError(w, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customer, release, ok := h.customerFromRequest(w, r)
	if !ok {
		return
	}
	defer release()
	turn, err := customer.Cancel(r.Context())
	if err != nil {
		writeMappedError(w, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// customerFromRequest resolves the session of a device that already tracks a
// turn. Devices without one get no_turn and are not remembered.
func (h *Handler) customerFromRequest(w http.ResponseWriter, r *http.Request) (*session.Customer, func(), bool) {
	requestID := requestIDFromRequest(r)
	deviceID := deviceIDFromRequest(r)
	if deviceID == "" || h.sessions == nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "X-Device-ID header is required")
		return nil, nil, false
	}
	customer, found, err := h.sessions.Lookup(r.Context(), deviceID)
	if err != nil {
		writeMappedError(w, requestID, err)
		return nil, nil, false
	}
	if !found {
		writeMappedError(w, requestID, session.ErrNoTurn)
		return nil, nil, false
	}
	return customer, func() { h.sessions.Release(deviceID) }, true
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	sess, err := h.gate.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeMappedError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.gate.Logout(r.Context()); err != nil {
		writeMappedError(w, requestIDFromRequest(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	turns := h.queue.ListWaiting()
	writeJSON(w, http.StatusOK, queueResponse{Turns: turns, Count: len(turns)})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Turns: h.queue.History(), Stats: h.queue.Stats()})
}

func (h *Handler) handleRenumber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.queue.Renumber(r.Context()); err != nil {
		writeMappedError(w, requestIDFromRequest(r), err)
		return
	}
	turns := h.queue.ListWaiting()
	writeJSON(w, http.StatusOK, queueResponse{Turns: turns, Count: len(turns)})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req notificationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.SenderPhone = strings.TrimSpace(req.SenderPhone)
	if req.SenderPhone != "" && !isValidPhone(req.SenderPhone) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "sender_phone must be 8-16 digits")
		return
	}

	notification, err := h.notifier.Send(r.Context(), notify.Request{
		TurnID:      req.TurnID,
		SenderPhone: req.SenderPhone,
		Message:     req.Message,
	})
	if err != nil {
		writeMappedError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, notification)
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrDuplicateActiveTurn):
		return http.StatusConflict, "duplicate_active_turn", "an active turn already exists for this mobile number"
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound, "turn_not_found", "turn not found"
	case errors.Is(err, queue.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "turn state does not allow this action"
	case errors.Is(err, queue.ErrInvalidInput), errors.Is(err, notify.ErrMissingFields):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, session.ErrNoTurn):
		return http.StatusNotFound, "no_turn", "no turn is tracked for this device"
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict, "turn_in_progress", "this device already holds a waiting turn"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, notify.ErrProvider):
		return http.StatusBadGateway, "provider_failed", "notification provider failed"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeMappedError(w http.ResponseWriter, requestID string, err error) {
	status, code, msg := mapError(err)
	writeError(w, requestID, status, code, msg)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
