package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
	"github.com/ANADelta/AlphaClassBot-App2/internal/scope"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func storeErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, "not_found", err)
	}
	return apperr.Wrap(apperr.KindStoreUnavailable, "store_unavailable", err)
}

// Users

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, institution_id, email, password_hash, name, role, phone, timezone, is_active, created_at, updated_at
		FROM users
		WHERE email = $1 AND is_active = TRUE
	`, email)
	err := row.Scan(
		&user.ID,
		&user.InstitutionID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.Phone,
		&user.Timezone,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, storeErr(err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, institution_id, email, password_hash, name, role, phone, timezone, is_active, created_at, updated_at
		FROM users
		WHERE id = $1 AND is_active = TRUE
	`, userID)
	err := row.Scan(
		&user.ID,
		&user.InstitutionID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.Phone,
		&user.Timezone,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, storeErr(err)
	}
	return user, nil
}

// Refresh sessions

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err != nil {
		return model.RefreshSession{}, storeErr(err)
	}
	return session, nil
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// Schedule

// TimeWindow bounds a schedule query on event start time. Nil bounds are
// open.
type TimeWindow struct {
	Start *time.Time
	End   *time.Time
}

func (w TimeWindow) filters() []scope.Filter {
	var filters []scope.Filter
	if w.Start != nil {
		filters = append(filters, scope.Filter{Expr: "se.start_datetime >= ?", Args: []any{*w.Start}})
	}
	if w.End != nil {
		filters = append(filters, scope.Filter{Expr: "se.start_datetime <= ?", Args: []any{*w.End}})
	}
	return filters
}

func (s *Store) ListScheduleEvents(ctx context.Context, p model.Principal, window TimeWindow) ([]model.ScheduleEvent, error) {
	pred, err := scope.For(p, scope.ScheduleEvents, window.filters()...)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT se.id, se.title, se.description, se.event_type, se.start_datetime, se.end_datetime,
		       se.location, se.is_cancelled, se.class_id, se.creator_id,
		       c.section_name, sub.code, sub.name
		FROM schedule_events se
		LEFT JOIN classes c ON se.class_id = c.id
		LEFT JOIN subjects sub ON c.subject_id = sub.id
		WHERE %s
		ORDER BY %s
	`, pred.Where, pred.OrderBy)
	rows, err := s.pool.Query(ctx, query, pred.Args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	events := []model.ScheduleEvent{}
	for rows.Next() {
		var event model.ScheduleEvent
		if err := rows.Scan(
			&event.ID,
			&event.Title,
			&event.Description,
			&event.EventType,
			&event.StartAt,
			&event.EndAt,
			&event.Location,
			&event.Cancelled,
			&event.ClassID,
			&event.CreatorID,
			&event.SectionName,
			&event.SubjectCode,
			&event.SubjectName,
		); err != nil {
			return nil, storeErr(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return events, nil
}

func (s *Store) CountUpcomingEvents(ctx context.Context, p model.Principal, after time.Time) (int, error) {
	pred, err := scope.For(p, scope.ScheduleEvents,
		scope.Filter{Expr: "se.start_datetime > ?", Args: []any{after}})
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM schedule_events se WHERE %s`, pred.Where)
	var count int
	if err := s.pool.QueryRow(ctx, query, pred.Args...).Scan(&count); err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// Classes

func (s *Store) ListClassSections(ctx context.Context, p model.Principal) ([]model.ClassSection, error) {
	pred, err := scope.For(p, scope.ClassSections)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT c.id, c.section_name, c.room, c.schedule_pattern, c.max_students,
		       sub.code, sub.name, sub.credits, sub.department,
		       u.id, u.name, u.email
		FROM classes c
		JOIN subjects sub ON c.subject_id = sub.id
		JOIN users u ON c.teacher_id = u.id
		WHERE c.is_active = TRUE AND %s
		ORDER BY sub.code ASC, c.section_name ASC
	`, pred.Where)
	rows, err := s.pool.Query(ctx, query, pred.Args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	sections := []model.ClassSection{}
	for rows.Next() {
		var section model.ClassSection
		if err := rows.Scan(
			&section.ID,
			&section.SectionName,
			&section.Room,
			&section.SchedulePattern,
			&section.MaxStudents,
			&section.SubjectCode,
			&section.SubjectName,
			&section.Credits,
			&section.Department,
			&section.TeacherID,
			&section.TeacherName,
			&section.TeacherEmail,
		); err != nil {
			return nil, storeErr(err)
		}
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return sections, nil
}

func (s *Store) CountActiveEnrollments(ctx context.Context, studentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status = 'active'
	`, studentID).Scan(&count)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func (s *Store) CountTaughtClasses(ctx context.Context, teacherID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM classes WHERE teacher_id = $1 AND is_active = TRUE
	`, teacherID).Scan(&count)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// Notifications

func (s *Store) ListNotifications(ctx context.Context, p model.Principal, limit int, unreadOnly bool) ([]model.Notification, error) {
	var filters []scope.Filter
	if unreadOnly {
		filters = append(filters, scope.Filter{Expr: "n.is_read = FALSE"})
	}
	pred, err := scope.For(p, scope.Notifications, filters...)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT n.id, n.user_id, n.title, n.message, n.type, n.priority, n.is_read, n.read_at, n.action_url, n.created_at
		FROM notifications n
		WHERE %s
		ORDER BY n.created_at DESC
		LIMIT $%d
	`, pred.Where, len(pred.Args)+1)
	args := append(pred.Args, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority, &n.Read, &n.ReadAt, &n.ActionURL, &n.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return notifications, nil
}

func (s *Store) GetNotification(ctx context.Context, notificationID string) (model.Notification, error) {
	var n model.Notification
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, message, type, priority, is_read, read_at, action_url, created_at
		FROM notifications
		WHERE id = $1
	`, notificationID)
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority, &n.Read, &n.ReadAt, &n.ActionURL, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, storeErr(err)
	}
	return n, nil
}

// MarkNotificationRead flips the read flag only when it is still unset, so
// the first transition's read_at is never overwritten.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID string, readAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE id = $1 AND is_read = FALSE
	`, notificationID, readAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, conv model.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_conversations (id, user_id, title, context, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.ID, conv.UserID, conv.Title, conv.Context, conv.CreatedAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (model.Conversation, error) {
	var conv model.Conversation
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, context, created_at
		FROM chat_conversations
		WHERE id = $1
	`, conversationID)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Context, &conv.CreatedAt)
	if err != nil {
		return model.Conversation{}, storeErr(err)
	}
	return conv, nil
}

func (s *Store) InsertTurn(ctx context.Context, turn model.ConversationTurn) (model.ConversationTurn, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (conversation_id, sender_type, message, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, turn.ConversationID, turn.Sender, turn.Message, turn.MessageType, turn.CreatedAt)
	if err := row.Scan(&turn.ID); err != nil {
		return model.ConversationTurn{}, storeErr(err)
	}
	return turn, nil
}

func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]model.ConversationTurn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_type, message, message_type, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	turns := []model.ConversationTurn{}
	for rows.Next() {
		var turn model.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Sender, &turn.Message, &turn.MessageType, &turn.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return turns, nil
}

// Reminders

// CreateEventReminders inserts one reminder notification per active
// enrollment for events starting inside (from, to], skipping students that
// already have a reminder for the event. Returns the number inserted.
func (s *Store) CreateEventReminders(ctx context.Context, from, to time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, priority, is_read, reference_id, created_at)
		SELECT gen_random_uuid(),
		       e.student_id,
		       'Upcoming: ' || se.title,
		       se.title || ' starts at ' || to_char(se.start_datetime, 'YYYY-MM-DD HH24:MI'),
		       'reminder',
		       'high',
		       FALSE,
		       se.id,
		       now()
		FROM schedule_events se
		JOIN enrollments e ON e.class_id = se.class_id AND e.status = 'active'
		WHERE se.start_datetime > $1
		  AND se.start_datetime <= $2
		  AND se.is_cancelled = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.user_id = e.student_id AND n.type = 'reminder' AND n.reference_id = se.id
		  )
	`, from, to)
	if err != nil {
		return 0, storeErr(err)
	}
	return tag.RowsAffected(), nil
}
