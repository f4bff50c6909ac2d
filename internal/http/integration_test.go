package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// These tests expect a running server with the seed data applied:
// student@demo.local / teacher@demo.local / admin@demo.local, all with
// password "dev-password", inside the demo institution.

type loginBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

type eventBody struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	EventType string    `json:"eventType"`
	StartAt   time.Time `json:"startDatetime"`
	ClassID   *string   `json:"classId"`
}

type notificationBody struct {
	ID     string     `json:"id"`
	Read   bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt"`
}

type chatBody struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

func apiURL() string {
	if addr := os.Getenv("API_HTTP_ADDR"); addr != "" {
		return addr
	}
	return "http://127.0.0.1:8080"
}

func login(t *testing.T, email, password string) loginBody {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(apiURL()+"/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	var out loginBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out
}

func doAuthed(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiURL()+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	return resp
}

func TestScheduleIsRoleScoped(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	student := login(t, "student@demo.local", "dev-password")
	teacher := login(t, "teacher@demo.local", "dev-password")

	fetch := func(token string) []eventBody {
		resp := doAuthed(t, http.MethodGet, "/schedule", token, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("schedule status %d", resp.StatusCode)
		}
		var out struct {
			Events []eventBody `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode schedule: %v", err)
		}
		return out.Events
	}

	studentEvents := fetch(student.AccessToken)
	teacherEvents := fetch(teacher.AccessToken)

	// The seed enrolls the demo student in one class and assigns the demo
	// teacher another; the two views must not be identical.
	if len(studentEvents) == 0 {
		t.Fatal("expected seeded events for student")
	}
	if len(studentEvents) == len(teacherEvents) {
		same := true
		for i := range studentEvents {
			if studentEvents[i].ID != teacherEvents[i].ID {
				same = false
				break
			}
		}
		if same {
			t.Fatal("student and teacher saw identical schedules")
		}
	}
}

func TestScheduleWindowFiltering(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	student := login(t, "student@demo.local", "dev-password")

	resp := doAuthed(t, http.MethodGet, "/schedule?start=2000-01-01&end=2000-01-02", student.AccessToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status %d", resp.StatusCode)
	}
	var out struct {
		Events []eventBody `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(out.Events) != 0 {
		t.Fatalf("expected empty window, got %d events", len(out.Events))
	}

	bad := doAuthed(t, http.MethodGet, "/schedule?start=tomorrow", student.AccessToken, nil)
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", bad.StatusCode)
	}
}

func TestMarkNotificationReadIsIdempotent(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	student := login(t, "student@demo.local", "dev-password")
	teacher := login(t, "teacher@demo.local", "dev-password")

	resp := doAuthed(t, http.MethodGet, "/notifications?unreadOnly=true", student.AccessToken, nil)
	var list struct {
		Notifications []notificationBody `json:"notifications"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	resp.Body.Close()
	if len(list.Notifications) == 0 {
		t.Skip("no unread seeded notifications for student")
	}
	target := list.Notifications[0]

	// A different user must not be able to mark it.
	forbidden := doAuthed(t, http.MethodPut, "/notifications/"+target.ID+"/read", teacher.AccessToken, nil)
	forbidden.Body.Close()
	if forbidden.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user mark status %d, want 403", forbidden.StatusCode)
	}

	markOnce := func() notificationBody {
		resp := doAuthed(t, http.MethodPut, "/notifications/"+target.ID+"/read", student.AccessToken, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("mark read status %d", resp.StatusCode)
		}
		var out struct {
			Notification notificationBody `json:"notification"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode mark read: %v", err)
		}
		return out.Notification
	}

	first := markOnce()
	if !first.Read || first.ReadAt == nil {
		t.Fatalf("notification not marked read: %+v", first)
	}
	second := markOnce()
	if second.ReadAt == nil || !second.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("readAt moved on repeat mark: first %v, second %v", first.ReadAt, second.ReadAt)
	}
}

func TestChatConversationFlow(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	student := login(t, "student@demo.local", "dev-password")
	teacher := login(t, "teacher@demo.local", "dev-password")

	resp := doAuthed(t, http.MethodPost, "/chat", student.AccessToken, map[string]string{
		"message": "What classes do I have this week?",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("chat status %d: %s", resp.StatusCode, body)
	}
	var first chatBody
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if first.ConversationID == "" || first.Response == "" {
		t.Fatalf("incomplete chat response: %+v", first)
	}

	followUp := doAuthed(t, http.MethodPost, "/chat", student.AccessToken, map[string]string{
		"message":        "And next week?",
		"conversationId": first.ConversationID,
	})
	defer followUp.Body.Close()
	if followUp.StatusCode != http.StatusOK {
		t.Fatalf("follow-up status %d", followUp.StatusCode)
	}
	var second chatBody
	if err := json.NewDecoder(followUp.Body).Decode(&second); err != nil {
		t.Fatalf("decode follow-up: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("follow-up switched conversations: %s vs %s", second.ConversationID, first.ConversationID)
	}

	transcript := doAuthed(t, http.MethodGet, "/conversations/"+first.ConversationID+"/messages", student.AccessToken, nil)
	defer transcript.Body.Close()
	if transcript.StatusCode != http.StatusOK {
		t.Fatalf("transcript status %d", transcript.StatusCode)
	}
	var out struct {
		Messages []struct {
			Sender string `json:"sender"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(transcript.Body).Decode(&out); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(out.Messages) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(out.Messages))
	}
	if out.Messages[0].Sender != "user" || out.Messages[1].Sender != "assistant" {
		t.Fatalf("unexpected turn order: %+v", out.Messages)
	}

	// Another user must not read the transcript.
	foreign := doAuthed(t, http.MethodGet, "/conversations/"+first.ConversationID+"/messages", teacher.AccessToken, nil)
	foreign.Body.Close()
	if foreign.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user transcript status %d, want 403", foreign.StatusCode)
	}
}

func TestRefreshRotation(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	student := login(t, "student@demo.local", "dev-password")

	refresh := func(token string) (*http.Response, loginBody) {
		payload, _ := json.Marshal(map[string]string{"refreshToken": token})
		resp, err := http.Post(apiURL()+"/auth/refresh", "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("refresh request: %v", err)
		}
		var out loginBody
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		return resp, out
	}

	resp, rotated := refresh(student.RefreshToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	if rotated.RefreshToken == student.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	replay, _ := refresh(student.RefreshToken)
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status %d, want 401", replay.StatusCode)
	}
}
