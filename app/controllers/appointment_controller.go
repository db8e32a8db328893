package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"github.com/ganzorigb/uulzalt/internal/pkg/cache"
	"github.com/ganzorigb/uulzalt/internal/pkg/database"
	"github.com/ganzorigb/uulzalt/internal/pkg/mail"
	"github.com/ganzorigb/uulzalt/internal/pkg/meetings"
	"github.com/ganzorigb/uulzalt/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const meetingCacheTTL = 30 * time.Minute

type rescheduleRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// HandleAppointmentConfirm provisions the conference resource for a pending
// appointment and marks it confirmed. Creation is single-shot: re-submitting
// the same request id to Google is safe, but we never auto-retry because the
// first attempt may have gone through.
func HandleAppointmentConfirm(c *fiber.Ctx) error {
	appt, biz, fail := loadAppointmentWithBusiness(c)
	if fail != nil {
		return fail(c)
	}
	if appt.Status == models.AppointmentStatusCanceled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "appointment is canceled"})
	}
	if appt.HasMeeting() {
		// Confirm is idempotent once the meeting exists.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "appointment": appt})
	}
	if !biz.HasGoogleCredentials() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "google calendar is not connected for this business"})
	}

	mgr := meetings.NewManagerFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	details, err := mgr.CreateMeeting(ctx, meetingCredentials(biz), meetingRequestFor(appt, biz))
	countMeetingOp("create", err == nil)
	if err != nil {
		return meetingErrorResponse(c, "meeting creation", appt.ID, err)
	}

	applyMeetingDetails(appt, details)
	appt.Status = models.AppointmentStatusConfirmed
	if err := database.GetDB().Save(appt).Error; err != nil {
		log.Errorf("[Appointments] saving confirmed appointment %d: %v", appt.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save appointment"})
	}
	cacheMeetingDetails(appt.ID, details)
	notifyCustomerAsync(appt, "Your appointment is confirmed",
		fmt.Sprintf("<p>Hi %s,</p><p>Your appointment on %s is confirmed.</p><p>Join here: <a href=\"%s\">%s</a></p>",
			appt.CustomerName, appt.StartsAt.Format(time.RFC1123), details.MeetingURL, details.MeetingURL))

	log.Infof("[Appointments] appointment %d confirmed, meeting %s", appt.ID, details.EventID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "appointment": appt})
}

// HandleAppointmentReschedule moves the slot. If a meeting exists, the
// calendar event is updated in place so the join link survives the move.
func HandleAppointmentReschedule(c *fiber.Ctx) error {
	appt, biz, fail := loadAppointmentWithBusiness(c)
	if fail != nil {
		return fail(c)
	}
	if appt.Status == models.AppointmentStatusCanceled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "appointment is canceled"})
	}

	var req rescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "starts_at and ends_at must form a valid interval"})
	}

	appt.StartsAt = req.StartsAt.UTC()
	appt.EndsAt = req.EndsAt.UTC()

	if appt.HasMeeting() {
		if !biz.HasGoogleCredentials() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "google calendar is not connected for this business"})
		}
		mgr := meetings.NewManagerFromEnv()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		details, err := mgr.UpdateMeeting(ctx, meetingCredentials(biz), appt.MeetingEventID, meetingRequestFor(appt, biz))
		countMeetingOp("update", err == nil)
		if err != nil {
			return meetingErrorResponse(c, "meeting update", appt.ID, err)
		}
		applyMeetingDetails(appt, details)
		cacheMeetingDetails(appt.ID, details)
	}

	appt.Status = models.AppointmentStatusRescheduled
	if err := database.GetDB().Save(appt).Error; err != nil {
		log.Errorf("[Appointments] saving rescheduled appointment %d: %v", appt.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save appointment"})
	}
	notifyCustomerAsync(appt, "Your appointment was rescheduled",
		fmt.Sprintf("<p>Hi %s,</p><p>Your appointment has moved to %s.</p>",
			appt.CustomerName, appt.StartsAt.Format(time.RFC1123)))

	log.Infof("[Appointments] appointment %d rescheduled to %s", appt.ID, appt.StartsAt.Format(time.RFC3339))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "appointment": appt})
}

// HandleAppointmentCancel cancels the slot and tears down the conference
// resource. A meeting already gone on the provider side counts as success.
func HandleAppointmentCancel(c *fiber.Ctx) error {
	appt, biz, fail := loadAppointmentWithBusiness(c)
	if fail != nil {
		return fail(c)
	}
	if appt.Status == models.AppointmentStatusCanceled {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "appointment": appt})
	}

	if appt.HasMeeting() && biz.HasGoogleCredentials() {
		mgr := meetings.NewManagerFromEnv()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := mgr.CancelMeeting(ctx, meetingCredentials(biz), appt.MeetingEventID)
		countMeetingOp("cancel", err == nil)
		if err != nil {
			return meetingErrorResponse(c, "meeting cancellation", appt.ID, err)
		}
	}

	appt.Status = models.AppointmentStatusCanceled
	appt.MeetingEventID = ""
	appt.MeetingURL = ""
	appt.ConferenceID = ""
	appt.PhoneDialIn = ""
	appt.PhonePIN = ""
	appt.HTMLLink = ""
	if err := database.GetDB().Save(appt).Error; err != nil {
		log.Errorf("[Appointments] saving canceled appointment %d: %v", appt.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save appointment"})
	}
	_ = cache.Delete(meetingCacheKey(appt.ID))
	notifyCustomerAsync(appt, "Your appointment was canceled",
		fmt.Sprintf("<p>Hi %s,</p><p>Your appointment on %s was canceled.</p>",
			appt.CustomerName, appt.StartsAt.Format(time.RFC1123)))

	log.Infof("[Appointments] appointment %d canceled", appt.ID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "appointment": appt})
}

// HandleAppointmentMeeting returns the live conference details for an
// appointment, served from cache when fresh.
func HandleAppointmentMeeting(c *fiber.Ctx) error {
	appt, biz, fail := loadAppointmentWithBusiness(c)
	if fail != nil {
		return fail(c)
	}
	if !appt.HasMeeting() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "appointment has no meeting"})
	}

	if cached, err := cache.Get(meetingCacheKey(appt.ID)); err == nil && cached != "" {
		var details meetings.MeetingDetails
		if json.Unmarshal([]byte(cached), &details) == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "meeting": details})
		}
	}

	if !biz.HasGoogleCredentials() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "google calendar is not connected for this business"})
	}

	mgr := meetings.NewManagerFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	details, err := mgr.GetMeetingDetails(ctx, meetingCredentials(biz), appt.MeetingEventID)
	countMeetingOp("get", err == nil)
	if err != nil {
		return meetingErrorResponse(c, "meeting lookup", appt.ID, err)
	}
	cacheMeetingDetails(appt.ID, details)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "meeting": details})
}

func loadAppointmentWithBusiness(c *fiber.Ctx) (*models.Appointment, *models.Business, func(*fiber.Ctx) error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return nil, nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid appointment id"})
		}
	}

	db := database.GetDB()
	var appt models.Appointment
	if err := db.First(&appt, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "appointment not found"})
			}
		}
		log.Errorf("[Appointments] loading appointment %d: %v", id, err)
		return nil, nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load appointment"})
		}
	}

	var biz models.Business
	if err := db.First(&biz, appt.BusinessID).Error; err != nil {
		log.Errorf("[Appointments] loading business %d: %v", appt.BusinessID, err)
		return nil, nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load business"})
		}
	}

	return &appt, &biz, nil
}

func meetingCredentials(biz *models.Business) meetings.Credentials {
	creds := meetings.Credentials{
		AccessToken:  biz.GoogleAccessToken,
		RefreshToken: biz.GoogleRefreshToken,
	}
	// A known-expired access token just wastes the first request; force the
	// refresh path up front.
	if biz.GoogleTokenExpiry != nil && biz.GoogleTokenExpiry.Before(time.Now()) {
		creds.AccessToken = ""
	}
	return creds
}

func meetingRequestFor(appt *models.Appointment, biz *models.Business) meetings.MeetingRequest {
	return meetings.MeetingRequest{
		AppointmentID: strconv.FormatUint(uint64(appt.ID), 10),
		Summary:       fmt.Sprintf("%s — appointment with %s", biz.Name, appt.CustomerName),
		Description:   appt.Notes,
		StartsAt:      appt.StartsAt,
		EndsAt:        appt.EndsAt,
		Timezone:      appt.Timezone,
		AttendeeEmail: appt.CustomerEmail,
		ConferenceID:  appt.ConferenceID,
	}
}

func applyMeetingDetails(appt *models.Appointment, details *meetings.MeetingDetails) {
	appt.MeetingEventID = details.EventID
	appt.MeetingURL = details.MeetingURL
	appt.ConferenceID = details.ConferenceID
	appt.PhoneDialIn = details.PhoneDialIn
	appt.PhonePIN = details.PhonePIN
	appt.HTMLLink = details.HTMLLink
}

func meetingCacheKey(appointmentID uint) string {
	return "meeting:appointment:" + strconv.FormatUint(uint64(appointmentID), 10)
}

func cacheMeetingDetails(appointmentID uint, details *meetings.MeetingDetails) {
	raw, err := json.Marshal(details)
	if err != nil {
		return
	}
	if err := cache.Set(meetingCacheKey(appointmentID), string(raw), meetingCacheTTL); err != nil {
		log.Debugf("[Appointments] meeting cache write failed: %v", err)
	}
}

func meetingErrorResponse(c *fiber.Ctx, op string, appointmentID uint, err error) error {
	var authErr *meetings.AuthError
	var provErr *meetings.ProviderError
	switch {
	case errors.Is(err, meetings.ErrNoConferenceData):
		log.Errorf("[Appointments] %s for appointment %d returned no conference data", op, appointmentID)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "calendar event created without conference data"})
	case errors.As(err, &authErr):
		log.Warnf("[Appointments] %s for appointment %d: google auth failed: %v", op, appointmentID, authErr)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "google authorization failed, reconnect the calendar"})
	case errors.As(err, &provErr):
		log.Warnf("[Appointments] %s for appointment %d: provider status=%d", op, appointmentID, provErr.StatusCode)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "calendar provider error", "details": provErr.Message})
	default:
		log.Errorf("[Appointments] %s for appointment %d: %v", op, appointmentID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "calendar provider unreachable"})
	}
}

func countMeetingOp(op string, ok bool) {
	if err := counter.AddMeetingOperation(op, ok); err != nil {
		log.Debugf("[Appointments] meeting op counter failed: %v", err)
	}
}

func notifyCustomerAsync(appt *models.Appointment, subject, body string) {
	to := appt.CustomerEmail
	if to == "" {
		return
	}
	go func() {
		if err := mail.SendMail(to, subject, body); err != nil {
			log.Warnf("[Appointments] notification mail to %s failed: %v", to, err)
		}
	}()
}
