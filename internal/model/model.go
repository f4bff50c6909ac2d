package model

import "time"

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Principal is the authenticated identity a request acts as. It is derived
// from a verified token, never persisted, and immutable for the request.
type Principal struct {
	UserID        string
	Role          string
	InstitutionID string
}

type User struct {
	ID            string
	InstitutionID string
	Email         string
	PasswordHash  string
	Name          string
	Role          string
	Phone         *string
	Timezone      string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	EventTypeClass      = "class"
	EventTypeExam       = "exam"
	EventTypeAssignment = "assignment"
	EventTypeMeeting    = "meeting"
	EventTypeHoliday    = "holiday"
	EventTypeCustom     = "custom"
)

type ScheduleEvent struct {
	ID          string
	Title       string
	Description *string
	EventType   string
	StartAt     time.Time
	EndAt       time.Time
	Location    *string
	Cancelled   bool
	ClassID     *string
	CreatorID   string
	SectionName *string
	SubjectCode *string
	SubjectName *string
}

type ClassSection struct {
	ID              string
	SectionName     string
	Room            *string
	SchedulePattern *string
	MaxStudents     int
	SubjectCode     string
	SubjectName     string
	Credits         int
	Department      *string
	TeacherID       string
	TeacherName     string
	TeacherEmail    string
}

const EnrollmentActive = "active"

type Enrollment struct {
	StudentID string
	ClassID   string
	Status    string
}

const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      string
	Priority  string
	Read      bool
	ReadAt    *time.Time
	ActionURL *string
	CreatedAt time.Time
}

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Context   string
	CreatedAt time.Time
}

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ConversationTurn is append-only; ID is assigned by the store in insert
// order and defines the transcript order.
type ConversationTurn struct {
	ID             int64
	ConversationID string
	Sender         string
	Message        string
	MessageType    string
	CreatedAt      time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
