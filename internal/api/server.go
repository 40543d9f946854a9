// Package api is the retrieval layer: it validates and maps HTTP calls onto
// mailbox store operations. It owns status mapping, field validation, and
// password redaction; none of the mail semantics live here.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	smtpclient "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.io/infrasutra/openmail/internal/auth"
	"github.io/infrasutra/openmail/internal/config"
	"github.io/infrasutra/openmail/internal/mailparse"
	"github.io/infrasutra/openmail/internal/metrics"
	"github.io/infrasutra/openmail/internal/pagination"
	"github.io/infrasutra/openmail/internal/sse"
	"github.io/infrasutra/openmail/internal/store"
)

type Server struct {
	cfg      config.Config
	store    *store.Store
	auth     *auth.Manager
	hub      *sse.Hub
	logger   *slog.Logger
	smtpAddr string
	mux      *http.ServeMux
}

func NewServer(cfg config.Config, st *store.Store, authManager *auth.Manager, hub *sse.Hub, logger *slog.Logger) *Server {
	server := &Server{
		cfg:      cfg,
		store:    st,
		auth:     authManager,
		hub:      hub,
		logger:   logger,
		smtpAddr: fmt.Sprintf("127.0.0.1:%d", cfg.SMTPPort),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/accounts", server.handleAccounts)
	mux.HandleFunc("/api/accounts/", server.handleAccount)
	mux.HandleFunc("/api/emails/", server.handleEmail)
	mux.HandleFunc("/api/simulate/receive-email", server.handleSimulate)
	mux.HandleFunc("/api/send", server.handleSend)
	mux.HandleFunc("/api/login", server.handleLogin)
	mux.HandleFunc("/api/logout", server.handleLogout)
	mux.HandleFunc("/api/me", server.handleMe)
	mux.HandleFunc("/api/stream", server.handleStream)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()

	s.mux.ServeHTTP(recorder, r)

	metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).Inc()
	s.logger.Info("http request",
		"id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", recorder.status,
		"duration", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

type accountResponse struct {
	ID          int       `json:"id"`
	Username    string    `json:"username"`
	Domain      string    `json:"domain"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	UnreadCount int       `json:"unreadCount"`
}

func (s *Server) toAccountResponse(account store.Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Username:    account.Username,
		Domain:      account.Domain,
		Email:       account.Email,
		CreatedAt:   account.CreatedAt,
		UnreadCount: s.store.UnreadCount(account.ID),
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts := s.store.GetAccounts()
		response := make([]accountResponse, 0, len(accounts))
		for _, account := range accounts {
			response = append(response, s.toAccountResponse(account))
		}
		s.respondJSON(w, http.StatusOK, response)
	case http.MethodPost:
		s.handleCreateAccount(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createAccountRequest struct {
	Username        string `json:"username"`
	Domain          string `json:"domain"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (req createAccountRequest) validate() error {
	if len(req.Username) < 3 {
		return errors.New("username must be at least 3 characters")
	}
	if len(req.Domain) < 3 {
		return errors.New("domain must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	if req.Password != req.ConfirmPassword {
		return errors.New("passwords do not match")
	}
	return nil
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	email := req.Username + "@" + req.Domain
	if _, exists := s.store.GetAccountByEmail(email); exists {
		s.respondError(w, http.StatusConflict, "Email address already exists")
		return
	}

	account := s.store.CreateAccount(req.Username, req.Domain, email, req.Password)
	s.respondJSON(w, http.StatusCreated, s.toAccountResponse(account))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/accounts/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	account, ok := s.store.GetAccount(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	switch {
	case len(parts) == 1:
		s.respondJSON(w, http.StatusOK, s.toAccountResponse(account))
	case len(parts) == 2 && parts[1] == "emails":
		messages := s.store.GetMessages(account.ID)
		if params := pagination.FromQuery(r.URL.Query()); params.Requested {
			start, end := params.Slice(len(messages))
			messages = messages[start:end]
		}
		s.respondJSON(w, http.StatusOK, messages)
	default:
		http.NotFound(w, r)
	}
}

type messageDetail struct {
	store.Message
	MagicLinks []string `json:"magicLinks"`
}

// handleEmail returns one message, marking it read and extracting magic
// links from the HTML body when present, the plain body otherwise.
func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/emails/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	msg, err := s.store.MarkRead(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Email not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch email")
		return
	}

	content := msg.Content
	if msg.HTMLContent != nil {
		content = *msg.HTMLContent
	}
	s.respondJSON(w, http.StatusOK, messageDetail{
		Message:    msg,
		MagicLinks: mailparse.ExtractMagicLinks(content),
	})
}

type simulateRequest struct {
	AccountID   int               `json:"accountId"`
	Sender      string            `json:"sender"`
	SenderEmail string            `json:"senderEmail"`
	Recipient   string            `json:"recipient"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	HTMLContent *string           `json:"htmlContent"`
	Headers     map[string]string `json:"headers"`
}

// handleSimulate is the test bypass: it persists a message without going
// through the wire protocol.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	account, ok := s.store.GetAccount(req.AccountID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	msg, err := s.store.CreateMessage(store.Message{
		AccountID:   req.AccountID,
		Sender:      req.Sender,
		SenderEmail: req.SenderEmail,
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		Content:     req.Content,
		HTMLContent: req.HTMLContent,
		Headers:     req.Headers,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to simulate email receipt")
		return
	}

	s.hub.Broadcast(account.Email, newMessageEvent(msg))
	s.respondJSON(w, http.StatusCreated, msg)
}

type sendRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// handleSend composes a message from the logged-in account and loops it back
// through our own SMTP listener, exercising the full ingestion pipeline.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	email, err := s.sessionEmail(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	recipients := normalizeRecipients(req.To)
	if len(recipients) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one recipient required")
		return
	}
	textBody := strings.TrimSpace(req.Text)
	htmlBody := strings.TrimSpace(req.HTML)
	if textBody == "" && htmlBody == "" {
		s.respondError(w, http.StatusBadRequest, "message body required")
		return
	}

	raw := buildOutboundMessage(email, recipients, strings.TrimSpace(req.Subject), textBody, htmlBody)
	// One connection per recipient: the listener records a single envelope
	// recipient per transaction.
	for _, recipient := range recipients {
		if err := s.relayMessage(email, recipient, raw); err != nil {
			s.logger.Error("send mail", "error", err, "recipient", recipient)
			s.respondError(w, http.StatusBadGateway, "unable to send mail")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// relayMessage loops one composed message back through the local SMTP
// listener.
func (s *Server) relayMessage(from, to string, raw []byte) error {
	c, err := smtpclient.Dial(s.smtpAddr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.smtpAddr, err)
	}
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("start data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finish data: %w", err)
	}
	return c.Quit()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	account, ok := s.store.GetAccountByEmail(strings.TrimSpace(req.Email))
	if !ok || account.Password != req.Password {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	token, err := s.auth.Issue(account.Email, now)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "unable to create session")
		return
	}
	s.setSessionCookie(w, token, now)
	s.respondJSON(w, http.StatusOK, s.toAccountResponse(account))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	email, err := s.sessionEmail(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, ok := s.store.GetAccountByEmail(email)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.respondJSON(w, http.StatusOK, s.toAccountResponse(account))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	email, err := s.sessionEmail(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(email)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ready")
}

func (s *Server) sessionEmail(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.auth.CookieName())
	if err != nil {
		return "", errors.New("missing session")
	}
	return s.auth.Parse(cookie.Value, time.Now())
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string, now time.Time) {
	maxAge := int(s.auth.MaxAge().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  now.Add(s.auth.MaxAge()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newMessageEvent(msg store.Message) []byte {
	payload := map[string]any{
		"id":         msg.ID,
		"accountId":  msg.AccountID,
		"from":       msg.SenderEmail,
		"subject":    msg.Subject,
		"receivedAt": msg.ReceivedAt.UTC().Format(time.RFC3339),
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: message\ndata: %s\n\n", data))
}

func normalizeRecipients(recipients []string) []string {
	seen := map[string]struct{}{}
	result := []string{}
	for _, recipient := range recipients {
		trimmed := strings.ToLower(strings.TrimSpace(recipient))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func buildOutboundMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("openmail-%d", time.Now().UnixNano())
	from = sanitizeHeader(from)
	subject = sanitizeHeader(subject)
	cleanTo := make([]string, 0, len(to))
	for _, recipient := range to {
		cleanTo = append(cleanTo, sanitizeHeader(recipient))
	}
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", strings.Join(cleanTo, ", ")),
		fmt.Sprintf("Subject: %s", subject),
		fmt.Sprintf("Date: %s", time.Now().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
	}

	if textBody != "" && htmlBody != "" {
		headers = append(headers, fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", boundary))
		body := []string{
			"",
			fmt.Sprintf("--%s", boundary),
			"Content-Type: text/plain; charset=utf-8",
			"",
			textBody,
			fmt.Sprintf("--%s", boundary),
			"Content-Type: text/html; charset=utf-8",
			"",
			htmlBody,
			fmt.Sprintf("--%s--", boundary),
			"",
		}
		return []byte(strings.Join(append(headers, body...), "\r\n"))
	}

	contentType := "text/plain"
	body := textBody
	if body == "" {
		contentType = "text/html"
		body = htmlBody
	}
	headers = append(headers, fmt.Sprintf("Content-Type: %s; charset=utf-8", contentType))
	return []byte(strings.Join(append(headers, "", body, ""), "\r\n"))
}

func sanitizeHeader(value string) string {
	cleaned := strings.ReplaceAll(value, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", "")
	return strings.TrimSpace(cleaned)
}
