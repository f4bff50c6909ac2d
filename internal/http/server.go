package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/auth"
	"github.com/ANADelta/AlphaClassBot-App2/internal/chat"
	"github.com/ANADelta/AlphaClassBot-App2/internal/config"
	"github.com/ANADelta/AlphaClassBot-App2/internal/crypto"
	"github.com/ANADelta/AlphaClassBot-App2/internal/db"
	"github.com/ANADelta/AlphaClassBot-App2/internal/llm"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
	"github.com/ANADelta/AlphaClassBot-App2/internal/notify"
	"github.com/ANADelta/AlphaClassBot-App2/internal/summary"
)

type Server struct {
	cfg        config.Config
	store      *db.Store
	chat       *chat.Manager
	tracker    *notify.Tracker
	summarizer *summary.Summarizer
}

func NewServer(cfg config.Config, store *db.Store, generator llm.Generator, redisClient *redis.Client) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		chat:       chat.NewManager(store, generator),
		tracker:    notify.NewTracker(store),
		summarizer: summary.New(store, redisClient, cfg.SummaryCacheTTL),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)
	r.With(s.authMiddleware).Get("/schedule", s.handleGetSchedule)
	r.With(s.authMiddleware).Get("/classes", s.handleGetClasses)
	r.With(s.authMiddleware).Get("/notifications", s.handleGetNotifications)
	r.With(s.authMiddleware).Put("/notifications/{notificationId}/read", s.handleMarkNotificationRead)
	r.With(s.authMiddleware).Post("/chat", s.handleChat)
	r.With(s.authMiddleware).Get("/conversations/{conversationId}/messages", s.handleGetConversationMessages)

	return r
}

// Auth

type principalKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		principal, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(model.Principal)
	return principal, ok
}

// Models

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	Phone         *string `json:"phone,omitempty"`
	Timezone      string  `json:"timezone"`
	InstitutionID string  `json:"institutionId"`
}

type eventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	EventType   string    `json:"eventType"`
	StartAt     time.Time `json:"startDatetime"`
	EndAt       time.Time `json:"endDatetime"`
	Location    *string   `json:"location,omitempty"`
	Cancelled   bool      `json:"isCancelled"`
	ClassID     *string   `json:"classId,omitempty"`
	SectionName *string   `json:"sectionName,omitempty"`
	SubjectCode *string   `json:"subjectCode,omitempty"`
	SubjectName *string   `json:"subjectName,omitempty"`
}

type classResponse struct {
	ID              string  `json:"id"`
	SectionName     string  `json:"sectionName"`
	Room            *string `json:"room,omitempty"`
	SchedulePattern *string `json:"schedulePattern,omitempty"`
	MaxStudents     int     `json:"maxStudents"`
	SubjectCode     string  `json:"subjectCode"`
	SubjectName     string  `json:"subjectName"`
	Credits         int     `json:"credits"`
	Department      *string `json:"department,omitempty"`
	TeacherName     string  `json:"teacherName"`
	TeacherEmail    string  `json:"teacherEmail"`
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Priority  string     `json:"priority"`
	Read      bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	ActionURL *string    `json:"actionUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

type turnResponse struct {
	ID          int64     `json:"id"`
	Sender      string    `json:"sender"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeAppError(w, err)
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	s.writeAuthResponse(w, r, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.store.GetRefreshSession(r.Context(), crypto.HashToken(req.RefreshToken))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}
	now := time.Now().UTC()
	if session.RevokedAt != nil || now.After(session.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}
	if err := s.store.RevokeRefreshSession(r.Context(), session.ID, now); err != nil {
		writeAppError(w, err)
		return
	}

	s.writeAuthResponse(w, r, user)
}

func (s *Server) writeAuthResponse(w http.ResponseWriter, r *http.Request, user model.User) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:        user.ID,
		Role:          user.Role,
		InstitutionID: user.InstitutionID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	now := time.Now().UTC()
	if err := s.store.CreateRefreshSession(r.Context(), model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         mapUser(user),
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), principal.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var window db.TimeWindow
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := parseTimeParam(raw, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_window")
			return
		}
		window.Start = &parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := parseTimeParam(raw, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_window")
			return
		}
		window.End = &parsed
	}

	events, err := s.store.ListScheduleEvents(r.Context(), principal, window)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, mapEvent(event))
	}
	writeJSON(w, http.StatusOK, map[string][]eventResponse{"events": resp})
}

func (s *Server) handleGetClasses(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	sections, err := s.store.ListClassSections(r.Context(), principal)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := make([]classResponse, 0, len(sections))
	for _, section := range sections {
		resp = append(resp, mapClass(section))
	}
	writeJSON(w, http.StatusOK, map[string][]classResponse{"classes": resp})
}

func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	limit := parseLimit(r, 20)
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	notifications, err := s.store.ListNotifications(r.Context(), principal, limit, unreadOnly)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, mapNotification(n))
	}
	writeJSON(w, http.StatusOK, map[string][]notificationResponse{"notifications": resp})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	notificationID := chi.URLParam(r, "notificationId")
	if _, err := uuid.Parse(notificationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_notification_id")
		return
	}

	notification, err := s.tracker.MarkRead(r.Context(), principal, notificationID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"notification": mapNotification(notification),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message")
		return
	}
	if req.ConversationID != "" {
		if _, err := uuid.Parse(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_conversation_id")
			return
		}
	}

	sum, err := s.summarizer.Summarize(r.Context(), principal)
	if err != nil {
		writeAppError(w, err)
		return
	}

	reply, conv, err := s.chat.Converse(r.Context(), principal, req.ConversationID, req.Message, s.summarizer.SystemPrompt(sum))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:       reply,
		ConversationID: conv.ID,
	})
}

func (s *Server) handleGetConversationMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	conversationID := chi.URLParam(r, "conversationId")
	if _, err := uuid.Parse(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation_id")
		return
	}

	turns, err := s.chat.Transcript(r.Context(), principal, conversationID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		resp = append(resp, turnResponse{
			ID:          turn.ID,
			Sender:      turn.Sender,
			Message:     turn.Message,
			MessageType: turn.MessageType,
			CreatedAt:   turn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": conversationID,
		"messages":       resp,
	})
}

// Mapping helpers

func mapUser(user model.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Role:          user.Role,
		Phone:         user.Phone,
		Timezone:      user.Timezone,
		InstitutionID: user.InstitutionID,
	}
}

func mapEvent(event model.ScheduleEvent) eventResponse {
	return eventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		EventType:   event.EventType,
		StartAt:     event.StartAt,
		EndAt:       event.EndAt,
		Location:    event.Location,
		Cancelled:   event.Cancelled,
		ClassID:     event.ClassID,
		SectionName: event.SectionName,
		SubjectCode: event.SubjectCode,
		SubjectName: event.SubjectName,
	}
}

func mapClass(section model.ClassSection) classResponse {
	return classResponse{
		ID:              section.ID,
		SectionName:     section.SectionName,
		Room:            section.Room,
		SchedulePattern: section.SchedulePattern,
		MaxStudents:     section.MaxStudents,
		SubjectCode:     section.SubjectCode,
		SubjectName:     section.SubjectName,
		Credits:         section.Credits,
		Department:      section.Department,
		TeacherName:     section.TeacherName,
		TeacherEmail:    section.TeacherEmail,
	}
}

func mapNotification(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Priority:  n.Priority,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		ActionURL: n.ActionURL,
		CreatedAt: n.CreatedAt,
	}
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeAppError maps the error taxonomy onto HTTP statuses. Unauthorized
// stays distinct from not-found; collapsing the two for information hiding
// is a choice left to clients.
func writeAppError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidCredential:
		writeError(w, http.StatusUnauthorized, apperr.CodeOf(err))
	case apperr.KindUnauthorized:
		writeError(w, http.StatusForbidden, apperr.CodeOf(err))
	case apperr.KindInvalidResource:
		writeError(w, http.StatusBadRequest, apperr.CodeOf(err))
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, apperr.CodeOf(err))
	case apperr.KindInferenceUnavailable:
		writeError(w, http.StatusBadGateway, apperr.CodeOf(err))
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// parseTimeParam accepts RFC3339 timestamps or bare dates. A bare date used
// as a window end is widened to the end of that day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return parsed.UTC(), nil
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
