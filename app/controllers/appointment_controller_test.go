package controllers

import (
	"testing"
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"github.com/ganzorigb/uulzalt/internal/pkg/meetings"
	"github.com/stretchr/testify/assert"
)

func TestMeetingCredentials(t *testing.T) {
	biz := &models.Business{
		GoogleAccessToken:  "access-1",
		GoogleRefreshToken: "refresh-1",
	}

	creds := meetingCredentials(biz)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)

	expired := time.Now().Add(-time.Minute)
	biz.GoogleTokenExpiry = &expired
	creds = meetingCredentials(biz)
	assert.Empty(t, creds.AccessToken, "expired access token must be dropped so the refresh path runs")
	assert.Equal(t, "refresh-1", creds.RefreshToken)

	future := time.Now().Add(time.Hour)
	biz.GoogleTokenExpiry = &future
	creds = meetingCredentials(biz)
	assert.Equal(t, "access-1", creds.AccessToken)
}

func TestMeetingRequestFor(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	appt := &models.Appointment{
		ID:            17,
		CustomerName:  "B. Enkhjin",
		CustomerEmail: "enkhjin@example.mn",
		StartsAt:      start,
		EndsAt:        start.Add(30 * time.Minute),
		Timezone:      "Asia/Ulaanbaatar",
		Notes:         "first visit",
		ConferenceID:  "abc-defg-hij",
	}
	biz := &models.Business{Name: "Tavan Bogd Dental"}

	req := meetingRequestFor(appt, biz)
	assert.Equal(t, "17", req.AppointmentID)
	assert.Contains(t, req.Summary, "Tavan Bogd Dental")
	assert.Contains(t, req.Summary, "B. Enkhjin")
	assert.Equal(t, "first visit", req.Description)
	assert.Equal(t, start, req.StartsAt)
	assert.Equal(t, "Asia/Ulaanbaatar", req.Timezone)
	assert.Equal(t, "enkhjin@example.mn", req.AttendeeEmail)
	assert.Equal(t, "abc-defg-hij", req.ConferenceID, "reschedule must carry the attached conference forward")
}

func TestApplyMeetingDetails(t *testing.T) {
	appt := &models.Appointment{ID: 17}
	applyMeetingDetails(appt, &meetings.MeetingDetails{
		EventID:      "evt_abc",
		MeetingURL:   "https://meet.google.com/abc-defg-hij",
		ConferenceID: "abc-defg-hij",
		PhoneDialIn:  "+976 7011 1234",
		PhonePIN:     "123456",
		HTMLLink:     "https://calendar.google.com/event?eid=evt_abc",
	})

	assert.True(t, appt.HasMeeting())
	assert.Equal(t, "evt_abc", appt.MeetingEventID)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", appt.MeetingURL)
	assert.Equal(t, "123456", appt.PhonePIN)
}

func TestMeetingCacheKey(t *testing.T) {
	assert.Equal(t, "meeting:appointment:17", meetingCacheKey(17))
}
