// Package notification delivers advisory email to tenant users: trial expiry
// reminders and the registration approval flow. Delivery is best-effort; a
// failed send is recorded and returned but never rolls back the caller's work.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Template ids used by the account and billing packages.
const (
	TplTrialExpiryWeekly   = "trial-expiry-weekly"
	TplTrialExpiryDaily    = "trial-expiry-daily"
	TplUserPendingApproval = "user-pending-approval"
	TplUserApproved        = "user-approved"
	TplUserRejected        = "user-rejected"
)

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Notification is one outbound email and its delivery outcome.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// EmailSender is the transport for a single message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// HTTPEmailConfig configures HTTPEmailSender.
type HTTPEmailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// HTTPEmailSender posts messages to a transactional email provider's JSON API.
type HTTPEmailSender struct {
	client *resty.Client
	from   string
}

type sendEmailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// NewHTTPEmailSender builds a sender with retries on transport errors.
func NewHTTPEmailSender(cfg HTTPEmailConfig) *HTTPEmailSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPEmailSender{client: client, from: cfg.From}
}

// SendEmail posts one message; any non-2xx status is an error.
func (s *HTTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(sendEmailRequest{From: s.from, To: to, Subject: subject, Text: body}).
		Post("/send")
	if err != nil {
		return fmt.Errorf("email provider request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// LogEmailSender writes messages to the log instead of delivering them. Used
// in development and when no provider is configured.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("email not delivered (log sender)")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TplTrialExpiryWeekly,
			Name:    "Trial Expiry (weekly)",
			Subject: "[ClinicCloud] Your free trial ends in {{days_left}} days",
			Body: "Hello {{username}},\n\n" +
				"The free trial for '{{tenant_name}}' ends in {{days_left}} days.\n" +
				"Choose a plan to keep adding patients, users and appointments:\n" +
				"{{upgrade_url}}\n\n" +
				"The ClinicCloud Team",
		},
		{
			ID:      TplTrialExpiryDaily,
			Name:    "Trial Expiry (daily)",
			Subject: "[ClinicCloud] {{days_left}} day(s) left in your free trial",
			Body: "Hello {{username}},\n\n" +
				"Only {{days_left}} day(s) remain in the free trial for '{{tenant_name}}'.\n" +
				"Upgrade now to avoid interruption: {{upgrade_url}}\n\n" +
				"The ClinicCloud Team",
		},
		{
			ID:      TplUserPendingApproval,
			Name:    "New User Pending Approval",
			Subject: "[ClinicCloud] New User Pending Approval: {{new_username}}",
			Body: "Hello Admin,\n\n" +
				"A new user has requested to join your organization: '{{tenant_name}}'.\n\n" +
				"  Username: {{new_username}}\n" +
				"  Email: {{new_email}}\n" +
				"  Role: {{new_role}}\n" +
				"  Registered: {{registered_at}}\n" +
				"  Status: Pending Approval\n\n" +
				"Review pending users at {{review_url}}\n\n" +
				"Please verify that you know this person before approving their access.\n\n" +
				"The ClinicCloud Team",
		},
		{
			ID:      TplUserApproved,
			Name:    "Account Approved",
			Subject: "[ClinicCloud] Your Account Has Been Approved",
			Body: "Hello {{username}},\n\n" +
				"Your account has been approved by an administrator at '{{tenant_name}}'.\n" +
				"You can now log in: {{login_url}}\n\n" +
				"  Username: {{username}}\n" +
				"  Organization: {{tenant_name}}\n" +
				"  Role: {{role}}\n\n" +
				"Welcome to ClinicCloud!",
		},
		{
			ID:      TplUserRejected,
			Name:    "Account Rejected",
			Subject: "[ClinicCloud] Account Registration Update",
			Body: "Hello {{username}},\n\n" +
				"Your request to join '{{tenant_name}}' has not been approved at this time.\n" +
				"{{reason_line}}\n" +
				"If you believe this is an error, please contact the administrator of '{{tenant_name}}' directly.\n\n" +
				"The ClinicCloud Team",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// historyLimit bounds the in-memory delivery log.
const historyLimit = 1000

// Manager renders templates, sends through an EmailSender, and keeps a bounded
// log of recent deliveries for operators.
type Manager struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu      sync.RWMutex
	history []*Notification
}

// NewManager constructs a Manager.
func NewManager(sender EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		sender:    sender,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// Send delivers n and records the outcome. Empty recipients are skipped.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if strings.TrimSpace(n.Recipient) == "" {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		m.logger.Error().Err(sendErr).Str("template", n.TemplateID).Msg("email delivery failed")
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.history = append(m.history, n)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders templateID once and sends it to every recipient.
// All recipients are attempted; failures are joined.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipients ...string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	var errs []error
	for _, to := range recipients {
		n := &Notification{
			Recipient:    to,
			Subject:      subject,
			Body:         body,
			TemplateID:   templateID,
			TemplateData: data,
		}
		if err := m.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// Recent returns up to limit deliveries, newest first.
func (m *Manager) Recent(limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Stats counts recorded deliveries by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range m.history {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the delivery log to platform operators.
type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes mounts on a group that already requires a platform admin.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleRecent)
	g.GET("/notifications/stats", h.HandleStats)
}

func (h *Handler) HandleRecent(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.mgr.Recent(limit))
}

func (h *Handler) HandleStats(c echo.Context) error {
	stats := h.mgr.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]interface{}, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]interface{}{"status": k, "count": stats[k]})
	}
	return c.JSON(http.StatusOK, out)
}
