package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/AbduElrahman2001/BALHA/internal/app"
	"github.com/AbduElrahman2001/BALHA/internal/config"
	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/notify"
	"github.com/AbduElrahman2001/BALHA/internal/queue"
	"github.com/AbduElrahman2001/BALHA/internal/store/memory"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type fakeQueue struct {
	registerFn func(ctx context.Context, input queue.RegisterInput) (models.Turn, error)
	statusFn   func(id int64) (models.Turn, error)
	waitingFn  func() []models.Turn
}

func (f fakeQueue) Register(ctx context.Context, input queue.RegisterInput) (models.Turn, error) {
	if f.registerFn == nil {
		return models.Turn{}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeQueue) Complete(ctx context.Context, id int64) (models.Turn, error) {
	return models.Turn{}, nil
}

func (f fakeQueue) Cancel(ctx context.Context, id int64) (models.Turn, error) {
	return models.Turn{}, nil
}

func (f fakeQueue) Renumber(ctx context.Context) error {
	return nil
}

func (f fakeQueue) Status(id int64) (models.Turn, error) {
	if f.statusFn == nil {
		return models.Turn{}, queue.ErrNotFound
	}
	return f.statusFn(id)
}

func (f fakeQueue) FindActiveByMobile(mobile string) (models.Turn, bool) {
	return models.Turn{}, false
}

func (f fakeQueue) ListWaiting() []models.Turn {
	if f.waitingFn == nil {
		return nil
	}
	return f.waitingFn()
}

func (f fakeQueue) History() []models.Turn {
	return nil
}

func (f fakeQueue) Stats() queue.Stats {
	return queue.Stats{}
}

type fakeGate struct {
	authenticateFn func(ctx context.Context, sessionID string) (models.Session, error)
}

func (f fakeGate) Login(ctx context.Context, username, password string) (models.Session, error) {
	return models.Session{}, nil
}

func (f fakeGate) Logout(ctx context.Context) error {
	return nil
}

func (f fakeGate) Authenticate(ctx context.Context, sessionID string) (models.Session, error) {
	if f.authenticateFn == nil {
		return models.Session{SessionID: sessionID, Username: "admin", Role: models.RoleAdmin}, nil
	}
	return f.authenticateFn(ctx, sessionID)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestApp(t *testing.T, mutate func(cfg *config.Config)) (*app.App, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverMemory
	if mutate != nil {
		mutate(cfg)
	}
	a, err := app.OpenWithBackend(context.Background(), memory.New(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	h := NewHandler(a.Manager, Options{
		Sessions: a.Sessions,
		Gate:     a.Gate,
		Notifier: a.Notifier,
		Metrics:  a.Metrics.Handler(),
	})
	return a, AuthMiddleware(a.Gate, h.Routes())
}

func doRequest(t *testing.T, handler http.Handler, method, path string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeTurn(t *testing.T, resp *httptest.ResponseRecorder) models.Turn {
	t.Helper()
	var turn models.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	return turn
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func register(t *testing.T, handler http.Handler, device, name, mobile string) models.Turn {
	t.Helper()
	resp := doRequest(t, handler, http.MethodPost, "/api/turns", map[string]string{
		"customer_name": name,
		"mobile_number": mobile,
		"service_type":  "haircut",
	}, map[string]string{"X-Device-ID": device})
	if resp.Code != http.StatusOK {
		t.Fatalf("register %s: expected status 200, got %d: %s", name, resp.Code, resp.Body.String())
	}
	return decodeTurn(t, resp)
}

func login(t *testing.T, handler http.Handler) string {
	t.Helper()
	resp := doRequest(t, handler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d", resp.Code)
	}
	var sess models.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess.SessionID
}

func bearer(sessionID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + sessionID}
}

func TestRegisterTurnTracksDeviceSession(t *testing.T) {
	_, handler := newTestApp(t, nil)

	turn := register(t, handler, "device-a", "Ali", "0500000001")
	if turn.TurnNumber != 1 || turn.Status != models.StatusWaiting {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	resp := doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if tracked := decodeTurn(t, resp); tracked.ID != turn.ID {
		t.Fatalf("expected tracked turn %d, got %d", turn.ID, tracked.ID)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-b"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for other device, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "no_turn" {
		t.Fatalf("expected no_turn, got %s", code)
	}
}

func TestRegisterDuplicateMobile(t *testing.T) {
	_, handler := newTestApp(t, nil)
	register(t, handler, "device-a", "Ali", "0500000001")

	resp := doRequest(t, handler, http.MethodPost, "/api/turns", map[string]string{
		"customer_name": "Ali again",
		"mobile_number": "0500000001",
		"service_type":  "shampoo",
	}, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "duplicate_active_turn" {
		t.Fatalf("expected duplicate_active_turn, got %s", code)
	}
}

func TestRegisterValidation(t *testing.T) {
	_, handler := newTestApp(t, nil)

	cases := []struct {
		name    string
		payload map[string]string
		code    string
	}{
		{"missing name", map[string]string{"mobile_number": "0500000001", "service_type": "haircut"}, "invalid_request"},
		{"short phone", map[string]string{"customer_name": "Ali", "mobile_number": "123", "service_type": "haircut"}, "invalid_request"},
		{"letters in phone", map[string]string{"customer_name": "Ali", "mobile_number": "05000000ab", "service_type": "haircut"}, "invalid_request"},
		{"unknown service", map[string]string{"customer_name": "Ali", "mobile_number": "0500000001", "service_type": "massage"}, "invalid_request"},
		{"unknown field", map[string]string{"customer_name": "Ali", "mobile_number": "0500000001", "service_type": "haircut", "tenant_id": "x"}, "invalid_json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, handler, http.MethodPost, "/api/turns", tc.payload, nil)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
			if code := decodeErrorCode(t, resp); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestGetTurnStatus(t *testing.T) {
	_, handler := newTestApp(t, nil)
	turn := register(t, handler, "device-a", "Ali", "0500000001")

	resp := doRequest(t, handler, http.MethodGet, "/api/turns/"+strconv.FormatInt(turn.ID, 10), nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/turns/42", nil, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "turn_not_found" {
		t.Fatalf("expected turn_not_found, got %s", code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/turns/abc", nil, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestActiveTurnByMobile(t *testing.T) {
	_, handler := newTestApp(t, nil)
	turn := register(t, handler, "device-a", "Ali", "0500000001")

	resp := doRequest(t, handler, http.MethodGet, "/api/turns/active?mobile=0599999999", nil, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/turns/active?mobile=0500000001", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var public map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&public); err != nil {
		t.Fatalf("decode public turn: %v", err)
	}
	for _, field := range []string{"id", "customer_name", "mobile_number"} {
		if _, ok := public[field]; ok {
			t.Fatalf("expected %s to be hidden from the public lookup, got %v", field, public)
		}
	}
	if public["turn_number"] != float64(1) {
		t.Fatalf("expected turn number 1, got %v", public["turn_number"])
	}

	path := "/api/turns/active?mobile=0500000001&turn_id=" + strconv.FormatInt(turn.ID, 10)
	resp = doRequest(t, handler, http.MethodGet, path, nil, map[string]string{"X-Device-ID": "device-b"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-b"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected device-b to track the restored turn, got %d", resp.Code)
	}
	if tracked := decodeTurn(t, resp); tracked.ID != turn.ID {
		t.Fatalf("expected tracked turn %d, got %d", turn.ID, tracked.ID)
	}

	resp = doRequest(t, handler, http.MethodGet, path, nil, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without device header, got %d", resp.Code)
	}
	resp = doRequest(t, handler, http.MethodGet, "/api/turns/active?mobile=0500000001&turn_id=x", nil, map[string]string{"X-Device-ID": "device-b"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for a malformed turn id, got %d", resp.Code)
	}
}

func TestForeignDeviceCannotTakeOverTurn(t *testing.T) {
	_, handler := newTestApp(t, nil)
	victim := register(t, handler, "device-a", "Ali", "0500000001")
	intruder := map[string]string{"X-Device-ID": "device-x"}

	guesses := []string{
		"/api/turns/active?mobile=0500000001",
		"/api/turns/active?mobile=0500000001&turn_id=" + strconv.FormatInt(victim.ID+1, 10),
	}
	for _, path := range guesses {
		resp := doRequest(t, handler, http.MethodGet, path, nil, intruder)
		if resp.Code == http.StatusOK {
			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, ok := body["mobile_number"]; ok {
				t.Fatalf("%s: expected no customer details, got %v", path, body)
			}
		}
	}

	resp := doRequest(t, handler, http.MethodPost, "/api/session/turn/cancel", nil, intruder)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "no_turn" {
		t.Fatalf("expected no_turn, got %s", code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if tracked := decodeTurn(t, resp); tracked.ID != victim.ID || tracked.Status != models.StatusWaiting {
		t.Fatalf("expected victim turn to stay waiting, got %+v", tracked)
	}
}

func TestRegisterTwiceFromSameDevice(t *testing.T) {
	_, handler := newTestApp(t, nil)
	first := register(t, handler, "device-a", "Ali", "0500000001")

	resp := doRequest(t, handler, http.MethodPost, "/api/turns", map[string]string{
		"customer_name": "Ali",
		"mobile_number": "0500000009",
		"service_type":  "shampoo",
	}, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "turn_in_progress" {
		t.Fatalf("expected turn_in_progress, got %s", code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if tracked := decodeTurn(t, resp); tracked.ID != first.ID {
		t.Fatalf("expected device to keep turn %d, got %d", first.ID, tracked.ID)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/session/turn/cancel", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	register(t, handler, "device-a", "Ali", "0500000009")
}

func TestUnknownDevicesAreNotRetained(t *testing.T) {
	a, handler := newTestApp(t, nil)
	register(t, handler, "device-a", "Ali", "0500000001")

	for i := 0; i < 500; i++ {
		device := map[string]string{"X-Device-ID": "throwaway-" + strconv.Itoa(i)}
		doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, device)
		doRequest(t, handler, http.MethodPost, "/api/session/turn/cancel", nil, device)
		doRequest(t, handler, http.MethodGet, "/api/turns/active?mobile=0500000001&turn_id=1", nil, device)
		doRequest(t, handler, http.MethodPost, "/api/turns", map[string]string{
			"customer_name": "Ali",
			"mobile_number": "0500000001",
			"service_type":  "haircut",
		}, device)
	}

	if n := a.Sessions.Len(); n != 1 {
		t.Fatalf("expected only the tracking device in memory, got %d", n)
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	_, handler := newTestApp(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/queue"},
		{http.MethodGet, "/api/queue/history"},
		{http.MethodPost, "/api/queue/actions/renumber"},
		{http.MethodPost, "/api/turns/1/actions/complete"},
		{http.MethodPost, "/api/notifications"},
		{http.MethodPost, "/api/auth/logout"},
	}
	for _, p := range paths {
		resp := doRequest(t, handler, p.method, p.path, nil, nil)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected status 401, got %d", p.method, p.path, resp.Code)
		}
		resp = doRequest(t, handler, p.method, p.path, nil, bearer("not-a-session"))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with bad token: expected status 401, got %d", p.method, p.path, resp.Code)
		}
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	_, handler := newTestApp(t, nil)

	resp := doRequest(t, handler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	}, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %s", code)
	}
}

func TestCompleteRenumbersAndRefreshesSessions(t *testing.T) {
	_, handler := newTestApp(t, nil)
	first := register(t, handler, "device-a", "Ali", "0500000001")
	register(t, handler, "device-b", "Badr", "0500000002")
	register(t, handler, "device-c", "Camil", "0500000003")
	token := login(t, handler)

	resp := doRequest(t, handler, http.MethodPost, "/api/turns/"+strconv.FormatInt(first.ID, 10)+"/actions/complete", nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if completed := decodeTurn(t, resp); completed.Status != models.StatusCompleted {
		t.Fatalf("expected completed turn, got %+v", completed)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/queue", nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var waiting queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&waiting); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if waiting.Count != 2 || waiting.Turns[0].CustomerName != "Badr" || waiting.Turns[0].TurnNumber != 1 || waiting.Turns[1].TurnNumber != 2 {
		t.Fatalf("unexpected queue after completion: %+v", waiting)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-b"})
	if tracked := decodeTurn(t, resp); tracked.TurnNumber != 1 {
		t.Fatalf("expected device-b turn number 1, got %d", tracked.TurnNumber)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected completed turn to be reported once, got %d", resp.Code)
	}
	if tracked := decodeTurn(t, resp); tracked.Status != models.StatusCompleted {
		t.Fatalf("expected completed status, got %s", tracked.Status)
	}
	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected pointer to be cleared, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/queue/history", nil, bearer(token))
	var history historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Stats.Total != 3 || history.Stats.Completed != 1 || history.Stats.Waiting != 2 {
		t.Fatalf("unexpected stats: %+v", history.Stats)
	}
}

func TestSessionCancel(t *testing.T) {
	_, handler := newTestApp(t, nil)
	register(t, handler, "device-a", "Ali", "0500000001")
	turn := register(t, handler, "device-b", "Badr", "0500000002")

	resp := doRequest(t, handler, http.MethodPost, "/api/session/turn/cancel", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if cancelled := decodeTurn(t, resp); cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/session/turn", nil, map[string]string{"X-Device-ID": "device-a"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after cancel, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/turns/"+strconv.FormatInt(turn.ID, 10), nil, nil)
	if status := decodeTurn(t, resp); status.TurnNumber != 1 {
		t.Fatalf("expected renumbered turn 1, got %d", status.TurnNumber)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/session/turn/cancel", nil, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without device header, got %d", resp.Code)
	}
}

func TestCompleteCancelledTurn(t *testing.T) {
	_, handler := newTestApp(t, nil)
	turn := register(t, handler, "device-a", "Ali", "0500000001")
	token := login(t, handler)
	path := "/api/turns/" + strconv.FormatInt(turn.ID, 10) + "/actions/"

	resp := doRequest(t, handler, http.MethodPost, path+"cancel", nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = doRequest(t, handler, http.MethodPost, path+"complete", nil, bearer(token))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", code)
	}
}

func TestNotifications(t *testing.T) {
	_, handler := newTestApp(t, func(cfg *config.Config) { cfg.Notify.Provider = "noop" })
	turn := register(t, handler, "device-a", "Ali", "0500000001")
	token := login(t, handler)

	resp := doRequest(t, handler, http.MethodPost, "/api/notifications", map[string]interface{}{
		"turn_id":      turn.ID,
		"sender_phone": "0511111111",
		"message":      "{customer_name}, turn {turn_number} is next",
	}, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var sent notify.Notification
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if sent.Status != notify.StatusSent || sent.Recipient != "0500000001" || sent.Body != "Ali, turn 1 is next" {
		t.Fatalf("unexpected notification: %+v", sent)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/notifications", map[string]interface{}{
		"turn_id": turn.ID,
	}, bearer(token))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing sender, got %d", resp.Code)
	}
}

func TestNotificationProviderFailure(t *testing.T) {
	_, handler := newTestApp(t, func(cfg *config.Config) { cfg.Notify.Provider = "fail" })
	turn := register(t, handler, "device-a", "Ali", "0500000001")
	token := login(t, handler)

	resp := doRequest(t, handler, http.MethodPost, "/api/notifications", map[string]interface{}{
		"turn_id":      turn.ID,
		"sender_phone": "0511111111",
	}, bearer(token))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "provider_failed" {
		t.Fatalf("expected provider_failed, got %s", code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	_, handler := newTestApp(t, nil)
	token := login(t, handler)

	resp := doRequest(t, handler, http.MethodGet, "/api/auth/session", nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = doRequest(t, handler, http.MethodPost, "/api/auth/logout", nil, map[string]string{"X-Session-ID": token})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	resp = doRequest(t, handler, http.MethodGet, "/api/queue", nil, bearer(token))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", resp.Code)
	}
}

func TestPersistenceFailureMapsToInternalError(t *testing.T) {
	q := fakeQueue{
		registerFn: func(ctx context.Context, input queue.RegisterInput) (models.Turn, error) {
			return models.Turn{}, errors.Wrap(queue.ErrPersistence, "disk full")
		},
	}
	handler := NewHandler(q, Options{Gate: fakeGate{}}).Routes()

	resp := doRequest(t, handler, http.MethodPost, "/api/turns", map[string]string{
		"customer_name": "Ali",
		"mobile_number": "0500000001",
		"service_type":  "haircut",
	}, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "internal_error" {
		t.Fatalf("expected internal_error, got %s", code)
	}
}

func TestAuthMiddlewareStoreFailure(t *testing.T) {
	gate := fakeGate{
		authenticateFn: func(ctx context.Context, sessionID string) (models.Session, error) {
			return models.Session{}, errors.New("backend down")
		},
	}
	handler := AuthMiddleware(gate, NewHandler(fakeQueue{}, Options{Gate: gate}).Routes())

	resp := doRequest(t, handler, http.MethodGet, "/api/queue", nil, bearer("token"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
}

func TestListQueueWithFakeGate(t *testing.T) {
	q := fakeQueue{
		waitingFn: func() []models.Turn {
			return []models.Turn{{ID: 1, TurnNumber: 1, Status: models.StatusWaiting}}
		},
	}
	gate := fakeGate{}
	handler := AuthMiddleware(gate, NewHandler(q, Options{Gate: gate}).Routes())

	resp := doRequest(t, handler, http.MethodGet, "/api/queue", nil, bearer("token"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var waiting queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&waiting); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if waiting.Count != 1 {
		t.Fatalf("expected 1 waiting turn, got %d", waiting.Count)
	}
}

func TestServicesAndMetricsArePublic(t *testing.T) {
	_, handler := newTestApp(t, nil)

	resp := doRequest(t, handler, http.MethodGet, "/api/services", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var services []models.Service
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		t.Fatalf("decode services: %v", err)
	}
	if len(services) != len(models.Services) {
		t.Fatalf("expected %d services, got %d", len(models.Services), len(services))
	}

	register(t, handler, "device-a", "Ali", "0500000001")
	resp = doRequest(t, handler, http.MethodGet, "/metrics", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("balha_turns_waiting 1")) {
		t.Fatalf("expected waiting gauge in metrics output")
	}
}
