package meetings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ganzorigb/uulzalt/internal/pkg/env"
	"github.com/ganzorigb/uulzalt/internal/pkg/retry"
)

const (
	defaultGoogleTokenURL   = "https://oauth2.googleapis.com/token"
	defaultCalendarBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultCalendarID       = "primary"
	conferenceSolutionMeet  = "hangoutsMeet"
	reminderEmailMinutes    = 24 * 60
	reminderPopupMinutes    = 30
	maxProviderBodyLogBytes = 2048
)

// Manager provisions Google Calendar events with Meet conferences. It holds
// configuration only; every operation mints its own authenticated client
// from the supplied credential pair, so no token ever leaks across requests.
type Manager struct {
	ClientID     string
	ClientSecret string

	TokenURL   string
	APIBaseURL string
	CalendarID string

	HTTPClient *http.Client
}

// NewManagerFromEnv builds a manager from GOOGLE_* environment configuration.
func NewManagerFromEnv() *Manager {
	return &Manager{
		ClientID:     strings.TrimSpace(env.GetEnv("GOOGLE_KEY", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("GOOGLE_SECRET", "")),
		TokenURL:     strings.TrimSpace(env.GetEnv("GOOGLE_TOKEN_URL", defaultGoogleTokenURL)),
		APIBaseURL:   strings.TrimRight(env.GetEnv("GOOGLE_CALENDAR_API_BASE_URL", defaultCalendarBaseURL), "/"),
		CalendarID:   strings.TrimSpace(env.GetEnv("GOOGLE_CALENDAR_ID", defaultCalendarID)),
		HTTPClient: &http.Client{
			Timeout: retry.DefaultCallTimeout,
		},
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

type entryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
	Label          string `json:"label,omitempty"`
	Pin            string `json:"pin,omitempty"`
}

type conferenceSolutionKey struct {
	Type string `json:"type"`
}

type conferenceCreateRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey conferenceSolutionKey `json:"conferenceSolutionKey"`
}

type conferenceData struct {
	ConferenceID  string                   `json:"conferenceId,omitempty"`
	CreateRequest *conferenceCreateRequest `json:"createRequest,omitempty"`
	EntryPoints   []entryPoint             `json:"entryPoints,omitempty"`
}

type reminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type eventReminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []reminderOverride `json:"overrides,omitempty"`
}

type calendarEvent struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Description    string          `json:"description,omitempty"`
	Start          eventTime       `json:"start"`
	End            eventTime       `json:"end"`
	Attendees      []attendee      `json:"attendees,omitempty"`
	Reminders      *eventReminders `json:"reminders,omitempty"`
	ConferenceData *conferenceData `json:"conferenceData,omitempty"`
	HTMLLink       string          `json:"htmlLink,omitempty"`
}

// CreateMeeting provisions a conference-enabled calendar event for the
// appointment and returns the extracted meeting details. The conference
// request id is derived from the appointment id so the provider can
// deduplicate conference creation server-side even if the caller retries.
func (m *Manager) CreateMeeting(ctx context.Context, creds Credentials, req MeetingRequest) (*MeetingDetails, error) {
	token, err := m.mintToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	body := m.eventBody(req)
	body.ConferenceData = &conferenceData{
		CreateRequest: &conferenceCreateRequest{
			RequestID:             deriveRequestID(req.AppointmentID),
			ConferenceSolutionKey: conferenceSolutionKey{Type: conferenceSolutionMeet},
		},
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1&sendUpdates=all",
		m.APIBaseURL, url.PathEscape(m.CalendarID))
	event, err := m.doEvent(ctx, token, creds, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	return extractMeetingDetails(event)
}

// UpdateMeeting re-submits the full event body for an existing event id,
// keeping the attached conference. Used on reschedule.
func (m *Manager) UpdateMeeting(ctx context.Context, creds Credentials, eventID string, req MeetingRequest) (*MeetingDetails, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, errors.New("event id is required")
	}
	token, err := m.mintToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	// Updates replace unspecified fields, so the conference must be named in
	// the body or Google drops it from the event.
	body := m.eventBody(req)
	if cid := strings.TrimSpace(req.ConferenceID); cid != "" {
		body.ConferenceData = &conferenceData{ConferenceID: cid}
	} else {
		body.ConferenceData = &conferenceData{
			CreateRequest: &conferenceCreateRequest{
				RequestID:             deriveRequestID(req.AppointmentID),
				ConferenceSolutionKey: conferenceSolutionKey{Type: conferenceSolutionMeet},
			},
		}
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s?conferenceDataVersion=1&sendUpdates=all",
		m.APIBaseURL, url.PathEscape(m.CalendarID), url.PathEscape(eventID))
	event, err := m.doEvent(ctx, token, creds, http.MethodPut, endpoint, body)
	if err != nil {
		return nil, err
	}
	return extractMeetingDetails(event)
}

// CancelMeeting deletes the event and notifies attendees. An event that is
// already gone counts as cancelled.
func (m *Manager) CancelMeeting(ctx context.Context, creds Credentials, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return errors.New("event id is required")
	}
	token, err := m.mintToken(ctx, creds)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s?sendUpdates=all",
		m.APIBaseURL, url.PathEscape(m.CalendarID), url.PathEscape(eventID))
	// do already treats 404/410 on DELETE as success.
	_, _, err = m.do(ctx, token, creds, http.MethodDelete, endpoint, nil)
	return err
}

// GetMeetingDetails is a read-only fetch of the conference details. As the
// only idempotent calendar operation it goes through the retry layer.
func (m *Manager) GetMeetingDetails(ctx context.Context, creds Credentials, eventID string) (*MeetingDetails, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, errors.New("event id is required")
	}
	token, err := m.mintToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		m.APIBaseURL, url.PathEscape(m.CalendarID), url.PathEscape(eventID))

	var event *calendarEvent
	err = retry.Do(ctx, func() error {
		ev, doErr := m.doEvent(ctx, token, creds, http.MethodGet, endpoint, nil)
		if doErr != nil {
			var pe *ProviderError
			if errors.As(doErr, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 {
				return retry.Permanent(doErr)
			}
			return doErr
		}
		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return extractMeetingDetails(event)
}

func (m *Manager) eventBody(req MeetingRequest) *calendarEvent {
	tz := req.Timezone
	if tz == "" {
		tz = "Asia/Ulaanbaatar"
	}
	ev := &calendarEvent{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventTime{DateTime: req.StartsAt.Format(time.RFC3339), TimeZone: tz},
		End:         eventTime{DateTime: req.EndsAt.Format(time.RFC3339), TimeZone: tz},
	}
	if req.AttendeeEmail != "" {
		ev.Attendees = []attendee{{Email: req.AttendeeEmail}}
	}
	// Fixed reminder policy: email a day ahead, popup half an hour ahead.
	ev.Reminders = &eventReminders{
		UseDefault: false,
		Overrides: []reminderOverride{
			{Method: "email", Minutes: reminderEmailMinutes},
			{Method: "popup", Minutes: reminderPopupMinutes},
		},
	}
	return ev
}

// mintToken turns the credential pair into a bearer token for this one call.
// An access token handed in is trusted as-is; otherwise the refresh token is
// exchanged. Exchange failures surface as *AuthError and are not retried
// beyond the transport-level backoff.
func (m *Manager) mintToken(ctx context.Context, creds Credentials) (string, error) {
	if token := strings.TrimSpace(creds.AccessToken); token != "" {
		return token, nil
	}
	if strings.TrimSpace(creds.RefreshToken) == "" {
		return "", &AuthError{Cause: errors.New("no access or refresh token supplied")}
	}
	return m.refreshAccessToken(ctx, creds.RefreshToken)
}

func (m *Manager) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if m.ClientID == "" || m.ClientSecret == "" {
		return "", &AuthError{Cause: errors.New("GOOGLE_KEY/GOOGLE_SECRET are not configured")}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.ClientID)
	form.Set("client_secret", m.ClientSecret)

	var accessToken string
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := m.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("token refresh rejected: status=%d body=%s", resp.StatusCode, truncate(body)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("token refresh failed: status=%d", resp.StatusCode)
		}

		var out struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return retry.Permanent(err)
		}
		if strings.TrimSpace(out.AccessToken) == "" {
			return retry.Permanent(errors.New("token refresh returned empty access_token"))
		}
		accessToken = out.AccessToken
		return nil
	})
	if err != nil {
		return "", &AuthError{Cause: err}
	}
	return accessToken, nil
}

func (m *Manager) doEvent(ctx context.Context, token string, creds Credentials, method, endpoint string, body *calendarEvent) (*calendarEvent, error) {
	_, respBody, err := m.do(ctx, token, creds, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	var event calendarEvent
	if err := json.Unmarshal(respBody, &event); err != nil {
		return nil, fmt.Errorf("calendar response unreadable: %w", err)
	}
	return &event, nil
}

func (m *Manager) do(ctx context.Context, token string, creds Credentials, method, endpoint string, body *calendarEvent) (int, []byte, error) {
	status, respBody, err := m.doOnce(ctx, token, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}

	// A stale access token gets one refresh-and-retry when a refresh token
	// is available. Create requests stay safe because the conference request
	// id lets the provider deduplicate.
	if status == http.StatusUnauthorized && strings.TrimSpace(creds.RefreshToken) != "" {
		fresh, refreshErr := m.refreshAccessToken(ctx, creds.RefreshToken)
		if refreshErr != nil {
			return 0, nil, refreshErr
		}
		status, respBody, err = m.doOnce(ctx, fresh, method, endpoint, body)
		if err != nil {
			return 0, nil, err
		}
	}

	if method == http.MethodDelete && (status == http.StatusNotFound || status == http.StatusGone) {
		return status, respBody, nil
	}
	if status < 200 || status >= 300 {
		return 0, nil, &ProviderError{StatusCode: status, Message: truncate(respBody)}
	}
	return status, respBody, nil
}

func (m *Manager) doOnce(ctx context.Context, token, method, endpoint string, body *calendarEvent) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	return resp.StatusCode, respBody, nil
}

// extractMeetingDetails pulls the video entry point and optional phone
// dial-in out of the conference payload.
func extractMeetingDetails(event *calendarEvent) (*MeetingDetails, error) {
	if event.ConferenceData == nil || len(event.ConferenceData.EntryPoints) == 0 {
		return nil, ErrNoConferenceData
	}

	details := &MeetingDetails{
		EventID:      event.ID,
		ConferenceID: event.ConferenceData.ConferenceID,
		HTMLLink:     event.HTMLLink,
	}
	for _, ep := range event.ConferenceData.EntryPoints {
		switch ep.EntryPointType {
		case "video":
			if details.MeetingURL == "" {
				details.MeetingURL = ep.URI
			}
		case "phone":
			if details.PhoneDialIn == "" {
				details.PhoneDialIn = ep.Label
				if details.PhoneDialIn == "" {
					details.PhoneDialIn = ep.URI
				}
				details.PhonePIN = ep.Pin
			}
		}
	}
	if details.MeetingURL == "" {
		return nil, ErrNoConferenceData
	}
	return details, nil
}

// deriveRequestID builds the provider-side deduplication key for conference
// creation. Appointment ids are stable, so retries of the same appointment
// map to the same conference.
func deriveRequestID(appointmentID string) string {
	id := strings.TrimSpace(appointmentID)
	if id == "" {
		return fmt.Sprintf("uulzalt-%d", time.Now().UnixNano())
	}
	return "uulzalt-appt-" + id
}

func truncate(body []byte) string {
	if len(body) > maxProviderBodyLogBytes {
		return string(body[:maxProviderBodyLogBytes]) + "..."
	}
	return string(body)
}
