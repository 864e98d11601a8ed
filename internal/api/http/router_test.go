package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/api/http/handlers"
	"github.com/spec-kit/ticket-intake/internal/codec"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/internal/repository"
	"github.com/spec-kit/ticket-intake/internal/service"
	"github.com/spec-kit/ticket-intake/internal/validation"
)

func newTestApp(t *testing.T, sessions bool) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	var backend persistence.Backend = persistence.NewMemoryBackend()
	mwCfg := MiddlewareConfig{}
	if sessions {
		backend = persistence.NewSessionBackend(backend)
		mwCfg.Sessions = session.New()
	}
	store := repository.NewTicketStore(backend, codec.Obfuscated{}, logger, repository.StoreOptions{Metrics: metrics})
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store,
		Validator:  validation.New(5),
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Logger:     logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, mwCfg)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler("ticket-intake", "test", backend, codec.NameObfuscated, metrics),
		Tickets: handlers.NewTicketsHandler(svc),
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp, decoded
}

func jsonRequest(method, target string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func validSubmission() map[string]any {
	return map[string]any{
		"fullName":         "Amina Wanjiru",
		"email":            "amina@example.com",
		"phone":            "0712345678",
		"subject":          "Billing",
		"message":          "My invoice for March shows a duplicate line item for hosting.",
		"preferredContact": "email",
		"terms":            true,
	}
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCreateAndListTickets(t *testing.T) {
	app := newTestApp(t, false)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/tickets", validSubmission()))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	second := validSubmission()
	second["fullName"] = "Brian Otieno"
	second["subject"] = "General"
	second["message"] = "Short"
	if resp, body := do(t, app, jsonRequest(http.MethodPost, "/tickets", second)); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}

	filters := "subject:equals:Billing"
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/tickets?filters="+url.QueryEscape(filters)+"&sortBy=date:desc", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	rows, _ := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %v", body["data"])
	}
	row := rows[0].(map[string]any)
	if row["index"].(float64) != 1 || row["fullName"] != "Amina Wanjiru" || row["contact"] != "amina@example.com" {
		t.Fatalf("unexpected row %v", row)
	}
	if row["message"] != "My invoice for March shows a d…" {
		t.Fatalf("unexpected preview %q", row["message"])
	}
	if body["query"] != "filters=subject%3Aequals%3ABilling&sortBy=date%3Adesc" {
		t.Fatalf("unexpected canonical query %q", body["query"])
	}
}

func TestCreateTicketValidation(t *testing.T) {
	app := newTestApp(t, false)
	payload := validSubmission()
	payload["fullName"] = "Jo"

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/tickets", payload))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("unexpected error %v", body)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	first := details["errors"].([]any)[0].(map[string]any)
	if first["field"] != "fullName" || first["message"] != "Name must have at least 3 characters" {
		t.Fatalf("unexpected field error %v", first)
	}

	_, body = do(t, app, httptest.NewRequest(http.MethodGet, "/tickets", nil))
	if rows := body["data"].([]any); len(rows) != 0 {
		t.Fatalf("expected no tickets, got %v", rows)
	}
}

func TestMultipartSubmitAndDownload(t *testing.T) {
	app := newTestApp(t, false)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"fullName":           "Achieng Odhiambo",
		"phone":              "+254112345678",
		"subject":            "Technical",
		"message":            "Upload fails",
		"preferredContact[]": "phone",
		"terms":              "on",
	} {
		_ = w.WriteField(k, v)
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="attachment"; filename="error.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, _ := w.CreatePart(h)
	_, _ = part.Write([]byte("%PDF-1.7 fake"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/tickets", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	resp, body := do(t, app, req)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/tickets/1/attachments/0", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	content, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(content) != "%PDF-1.7 fake" {
		t.Fatalf("unexpected download %d %q", resp.StatusCode, content)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}

	_, body = do(t, app, httptest.NewRequest(http.MethodGet, "/tickets/1/call", nil))
	if href := body["data"].(map[string]any)["href"]; href != "tel:+254112345678" {
		t.Fatalf("unexpected call link %v", href)
	}
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/tickets/1/email", nil))
	if resp.StatusCode != fiber.StatusNotFound || body["error"].(map[string]any)["message"] != "No email available." {
		t.Fatalf("expected missing email, got %d %v", resp.StatusCode, body)
	}
}

func TestEditAndDeleteRoutes(t *testing.T) {
	app := newTestApp(t, false)
	if resp, _ := do(t, app, jsonRequest(http.MethodPost, "/tickets", validSubmission())); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create failed: %d", resp.StatusCode)
	}

	resp, body := do(t, app, jsonRequest(http.MethodPatch, "/tickets/1", map[string]any{"subject": "Technical"}))
	if resp.StatusCode != fiber.StatusOK || body["data"].(map[string]any)["subject"] != "Technical" {
		t.Fatalf("unexpected edit response %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, app, jsonRequest(http.MethodPatch, "/tickets/1", map[string]any{"message": ""}))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", resp.StatusCode)
	}

	resp, _ = do(t, app, httptest.NewRequest(http.MethodDelete, "/tickets/1", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without confirmation, got %d", resp.StatusCode)
	}
	resp, _ = do(t, app, httptest.NewRequest(http.MethodDelete, "/tickets/1?confirm=true", nil))
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp, body = do(t, app, httptest.NewRequest(http.MethodDelete, "/tickets/1?confirm=true", nil))
	if resp.StatusCode != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected 404 for stale id, got %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/tickets/abc", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestViewState(t *testing.T) {
	app := newTestApp(t, false)
	payload := map[string]any{
		"filters": []map[string]string{
			{"column": "message", "relation": "contains", "value": "a, b"},
			{"column": "subject", "relation": "like", "value": "x"},
		},
		"sortBy": []map[string]string{{"column": "date", "order": "desc"}},
	}
	resp, body := do(t, app, jsonRequest(http.MethodPost, "/tickets/view-state", payload))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	values, err := url.ParseQuery(data["query"].(string))
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}
	if values.Get("filters") != "message:contains:a%2C+b" || values.Get("sortBy") != "date:desc" {
		t.Fatalf("unexpected view state %v", values)
	}

	payload["reset"] = "filters"
	_, body = do(t, app, jsonRequest(http.MethodPost, "/tickets/view-state", payload))
	if got := body["data"].(map[string]any)["url"]; got != "/tickets?sortBy=date%3Adesc" {
		t.Fatalf("unexpected url %v", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	app := newTestApp(t, true)

	cookieFor := func() *http.Cookie {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/tickets", nil))
		for _, c := range resp.Cookies() {
			if c.Name == "session_id" {
				return c
			}
		}
		t.Fatalf("no session cookie issued")
		return nil
	}
	tabA, tabB := cookieFor(), cookieFor()

	req := jsonRequest(http.MethodPost, "/tickets", validSubmission())
	req.AddCookie(tabA)
	if resp, body := do(t, app, req); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create failed: %d %v", resp.StatusCode, body)
	}

	count := func(c *http.Cookie) int {
		req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
		req.AddCookie(c)
		_, body := do(t, app, req)
		return len(body["data"].([]any))
	}
	if count(tabA) != 1 || count(tabB) != 0 {
		t.Fatalf("sessions leaked: a=%d b=%d", count(tabA), count(tabB))
	}
}

func TestSessionCookieIsRenewedOnEveryRequest(t *testing.T) {
	app := newTestApp(t, true)
	sessionCookie := func(resp *http.Response) *http.Cookie {
		for _, c := range resp.Cookies() {
			if c.Name == "session_id" {
				return c
			}
		}
		return nil
	}

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/tickets", nil))
	first := sessionCookie(resp)
	if first == nil {
		t.Fatalf("no session cookie issued")
	}

	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.AddCookie(first)
	resp, _ = do(t, app, req)
	renewed := sessionCookie(resp)
	if renewed == nil {
		t.Fatalf("follow-up request did not renew the session cookie")
	}
	if renewed.Value != first.Value {
		t.Fatalf("session id changed: %q -> %q", first.Value, renewed.Value)
	}
	if renewed.MaxAge <= 0 {
		t.Fatalf("renewed cookie has no max-age: %+v", renewed)
	}
}

func TestErrorMetricsUseRoutePattern(t *testing.T) {
	app := newTestApp(t, false)
	for _, id := range []string{"41", "42"} {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/tickets/"+id, nil))
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("expected 404 for ticket %s, got %d", id, resp.StatusCode)
		}
	}
	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	errs := body["data"].(map[string]any)["errors"].(map[string]any)
	if errs["/tickets/:id|GET|NOT_FOUND"] != float64(2) {
		t.Fatalf("expected both misses under the route pattern, got %v", errs)
	}
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApp(t, false)
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.StatusCode != fiber.StatusOK || body["status"] != "ready" {
		t.Fatalf("unexpected readiness %d %v", resp.StatusCode, body)
	}
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	requests := body["data"].(map[string]any)["requests"].(map[string]any)
	if requests["/health/ready|GET|200"] != float64(1) {
		t.Fatalf("expected readiness request counted, got %v", requests)
	}
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if resp.StatusCode != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected 404 envelope, got %d %v", resp.StatusCode, body)
	}
}
