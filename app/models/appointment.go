package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	AppointmentStatusPending     = "pending"
	AppointmentStatusConfirmed   = "confirmed"
	AppointmentStatusRescheduled = "rescheduled"
	AppointmentStatusCanceled    = "canceled"
)

// Appointment is a booked slot. The meeting fields mirror the externally
// hosted conference resource and are written only by the meetings package
// operations; MeetingEventID empty means no resource has been provisioned.
type Appointment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BusinessID     uint      `gorm:"not null;index" json:"business_id"`
	CustomerName   string    `gorm:"type:varchar(150);not null" json:"customer_name" validate:"required,min=2,max=150"`
	CustomerEmail  string    `gorm:"type:varchar(255);not null" json:"customer_email" validate:"required,email"`
	StartsAt       time.Time `gorm:"type:timestamp;not null;index" json:"starts_at"`
	EndsAt         time.Time `gorm:"type:timestamp;not null" json:"ends_at"`
	Timezone       string    `gorm:"type:varchar(64);not null;default:'Asia/Ulaanbaatar'" json:"timezone"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes          string    `gorm:"type:text" json:"notes"`
	MeetingEventID string    `gorm:"type:varchar(191);index" json:"meeting_event_id"`
	MeetingURL     string    `gorm:"type:varchar(512)" json:"meeting_url"`
	ConferenceID   string    `gorm:"type:varchar(191)" json:"conference_id"`
	PhoneDialIn    string    `gorm:"type:varchar(64)" json:"phone_dial_in"`
	PhonePIN       string    `gorm:"type:varchar(32)" json:"phone_pin"`
	HTMLLink       string    `gorm:"type:varchar(512)" json:"html_link"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Appointment) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// HasMeeting reports whether a conference resource is attached.
func (a *Appointment) HasMeeting() bool {
	return a.MeetingEventID != ""
}
