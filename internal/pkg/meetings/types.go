package meetings

import (
	"errors"
	"fmt"
	"time"
)

// Credentials is the OAuth pair owned by the business. It is passed in per
// operation, used to mint a short-lived authenticated client, and discarded
// when the call returns. Nothing in this package caches it across requests.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// MeetingRequest describes the conference-enabled calendar event to create
// or re-submit. ConferenceID is only set on updates: it names the conference
// already attached to the event so a full-body update does not strip it.
type MeetingRequest struct {
	AppointmentID string
	Summary       string
	Description   string
	StartsAt      time.Time
	EndsAt        time.Time
	Timezone      string
	AttendeeEmail string
	ConferenceID  string
}

// MeetingDetails is the externally hosted conference resource attached to an
// appointment.
type MeetingDetails struct {
	EventID      string `json:"event_id"`
	MeetingURL   string `json:"meeting_url"`
	ConferenceID string `json:"conference_id"`
	PhoneDialIn  string `json:"phone_dial_in,omitempty"`
	PhonePIN     string `json:"phone_pin,omitempty"`
	HTMLLink     string `json:"html_link"`
}

// ErrNoConferenceData is returned when the provider created or returned the
// event but omitted conference details. Distinct from a hard provider error:
// the event exists, the conference does not.
var ErrNoConferenceData = errors.New("calendar event has no conference data")

// AuthError means the credential pair could not be turned into a working
// client (refresh rejected, no usable token). Not retried here.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("calendar auth initialization failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ProviderError is any other provider-side failure, surfaced with enough
// context for the caller to decide about retrying.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("calendar request failed: status=%d message=%s", e.StatusCode, e.Message)
}
