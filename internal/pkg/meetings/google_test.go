package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testManager(serverURL string) *Manager {
	return &Manager{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     serverURL + "/token",
		APIBaseURL:   serverURL + "/calendar/v3",
		CalendarID:   "primary",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func testMeetingRequest() MeetingRequest {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return MeetingRequest{
		AppointmentID: "17",
		Summary:       "Tavan Bogd Dental — appointment with B. Enkhjin",
		StartsAt:      start,
		EndsAt:        start.Add(30 * time.Minute),
		Timezone:      "Asia/Ulaanbaatar",
		AttendeeEmail: "enkhjin@example.mn",
	}
}

const meetEventResponse = `{
	"id": "evt_abc",
	"htmlLink": "https://calendar.google.com/event?eid=evt_abc",
	"conferenceData": {
		"conferenceId": "abc-defg-hij",
		"entryPoints": [
			{"entryPointType": "video", "uri": "https://meet.google.com/abc-defg-hij"},
			{"entryPointType": "phone", "label": "+976 7011 1234", "uri": "tel:+97670111234", "pin": "123456"}
		]
	}
}`

func TestCreateMeeting(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotBody calendarEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("event body unreadable: %v", err)
		}
		_, _ = w.Write([]byte(meetEventResponse))
	}))
	defer server.Close()

	m := testManager(server.URL)
	creds := Credentials{AccessToken: "live-token"}

	details, err := m.CreateMeeting(context.Background(), creds, testMeetingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.EventID != "evt_abc" {
		t.Fatalf("unexpected event id %q", details.EventID)
	}
	if details.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Fatalf("unexpected meeting url %q", details.MeetingURL)
	}
	if details.ConferenceID != "abc-defg-hij" {
		t.Fatalf("unexpected conference id %q", details.ConferenceID)
	}
	if details.PhoneDialIn != "+976 7011 1234" || details.PhonePIN != "123456" {
		t.Fatalf("unexpected dial-in: %q pin %q", details.PhoneDialIn, details.PhonePIN)
	}

	if gotPath != "/calendar/v3/calendars/primary/events" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "conferenceDataVersion=1&sendUpdates=all" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer live-token" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if gotBody.ConferenceData == nil || gotBody.ConferenceData.CreateRequest == nil {
		t.Fatalf("expected conference create request in body")
	}
	if gotBody.ConferenceData.CreateRequest.RequestID != "uulzalt-appt-17" {
		t.Fatalf("unexpected conference request id %q", gotBody.ConferenceData.CreateRequest.RequestID)
	}
	if gotBody.ConferenceData.CreateRequest.ConferenceSolutionKey.Type != "hangoutsMeet" {
		t.Fatalf("unexpected conference solution %q", gotBody.ConferenceData.CreateRequest.ConferenceSolutionKey.Type)
	}
	if gotBody.Reminders == nil || gotBody.Reminders.UseDefault || len(gotBody.Reminders.Overrides) != 2 {
		t.Fatalf("unexpected reminders: %+v", gotBody.Reminders)
	}
}

func TestCreateMeetingNoConferenceData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "evt_abc"}`))
	}))
	defer server.Close()

	m := testManager(server.URL)
	_, err := m.CreateMeeting(context.Background(), Credentials{AccessToken: "t"}, testMeetingRequest())
	if !errors.Is(err, ErrNoConferenceData) {
		t.Fatalf("expected ErrNoConferenceData, got %v", err)
	}
}

func TestCreateMeetingRefreshesStaleToken(t *testing.T) {
	var calendarCalls, tokenCalls int
	var mux http.ServeMux

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if r.FormValue("grant_type") != "refresh_token" || r.FormValue("refresh_token") != "refresh-1" {
			t.Errorf("unexpected token form: %v", r.Form)
		}
		_, _ = w.Write([]byte(`{"access_token": "fresh-token"}`))
	})
	mux.HandleFunc("/calendar/v3/", func(w http.ResponseWriter, r *http.Request) {
		calendarCalls++
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(meetEventResponse))
	})

	server := httptest.NewServer(&mux)
	defer server.Close()

	m := testManager(server.URL)
	creds := Credentials{AccessToken: "stale-token", RefreshToken: "refresh-1"}

	details, err := m.CreateMeeting(context.Background(), creds, testMeetingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.MeetingURL == "" {
		t.Fatalf("expected meeting details after refresh")
	}
	if tokenCalls != 1 {
		t.Fatalf("expected one token refresh, got %d", tokenCalls)
	}
	if calendarCalls != 2 {
		t.Fatalf("expected stale call plus retry, got %d", calendarCalls)
	}
}

func TestMintTokenAuthFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	m := testManager(server.URL)

	var authErr *AuthError
	_, err := m.CreateMeeting(context.Background(), Credentials{RefreshToken: "revoked"}, testMeetingRequest())
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for rejected refresh, got %v", err)
	}

	_, err = m.CreateMeeting(context.Background(), Credentials{}, testMeetingRequest())
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for empty credentials, got %v", err)
	}
}

func TestUpdateMeeting(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody calendarEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("event body unreadable: %v", err)
		}
		_, _ = w.Write([]byte(meetEventResponse))
	}))
	defer server.Close()

	m := testManager(server.URL)
	req := testMeetingRequest()
	req.ConferenceID = "abc-defg-hij"
	details, err := m.UpdateMeeting(context.Background(), Credentials{AccessToken: "t"}, "evt_abc", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/calendar/v3/calendars/primary/events/evt_abc" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if details.EventID != "evt_abc" {
		t.Fatalf("unexpected event id %q", details.EventID)
	}
	// An update is a full replacement; the attached conference must be named
	// in the body or the join link is lost.
	if gotBody.ConferenceData == nil || gotBody.ConferenceData.ConferenceID != "abc-defg-hij" {
		t.Fatalf("update body must carry the existing conference, got %+v", gotBody.ConferenceData)
	}

	// With no stored conference id the update falls back to re-requesting one
	// under the same appointment-derived request id.
	gotBody = calendarEvent{}
	if _, err := m.UpdateMeeting(context.Background(), Credentials{AccessToken: "t"}, "evt_abc", testMeetingRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody.ConferenceData == nil || gotBody.ConferenceData.CreateRequest == nil {
		t.Fatalf("expected conference create request fallback, got %+v", gotBody.ConferenceData)
	}
	if gotBody.ConferenceData.CreateRequest.RequestID != "uulzalt-appt-17" {
		t.Fatalf("unexpected conference request id %q", gotBody.ConferenceData.CreateRequest.RequestID)
	}

	if _, err := m.UpdateMeeting(context.Background(), Credentials{AccessToken: "t"}, "", testMeetingRequest()); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}

func TestCancelMeetingTreatsGoneAsSuccess(t *testing.T) {
	statuses := []int{http.StatusNoContent, http.StatusNotFound, http.StatusGone}
	idx := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(statuses[idx])
	}))
	defer server.Close()

	m := testManager(server.URL)
	for idx = range statuses {
		if err := m.CancelMeeting(context.Background(), Credentials{AccessToken: "t"}, "evt_abc"); err != nil {
			t.Fatalf("status %d should cancel cleanly, got %v", statuses[idx], err)
		}
	}
}

func TestGetMeetingDetailsRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(meetEventResponse))
	}))
	defer server.Close()

	m := testManager(server.URL)
	details, err := m.GetMeetingDetails(context.Background(), Credentials{AccessToken: "t"}, "evt_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.MeetingURL == "" {
		t.Fatalf("expected meeting details")
	}
	if calls != 2 {
		t.Fatalf("expected a retry after the 502, got %d calls", calls)
	}
}

func TestGetMeetingDetailsDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "insufficient permissions"}}`))
	}))
	defer server.Close()

	m := testManager(server.URL)
	_, err := m.GetMeetingDetails(context.Background(), Credentials{AccessToken: "t"}, "evt_abc")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status %d", pe.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
}

func TestExtractMeetingDetailsVideoRequired(t *testing.T) {
	_, err := extractMeetingDetails(&calendarEvent{
		ID: "evt_x",
		ConferenceData: &conferenceData{
			EntryPoints: []entryPoint{
				{EntryPointType: "phone", URI: "tel:+97670111234", Pin: "99"},
			},
		},
	})
	if !errors.Is(err, ErrNoConferenceData) {
		t.Fatalf("phone-only conference must be rejected, got %v", err)
	}
}

func TestDeriveRequestID(t *testing.T) {
	if got := deriveRequestID("42"); got != "uulzalt-appt-42" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := deriveRequestID(""); got == "" {
		t.Fatalf("empty appointment id must still yield a request id")
	}
}
