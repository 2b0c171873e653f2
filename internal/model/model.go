package model

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	RoleStudent = "student"
	RoleClub    = "club"
	RoleAdmin   = "admin"
)

const (
	ModeOnline  = "Online"
	ModeOffline = "Offline"
)

// EventTypes is the set of accepted event categories.
var EventTypes = []string{"Tech", "Cultural", "Sports", "Intra College", "Inter College", "Workshop", "Seminar", "Other"}

type Event struct {
	ID                     string             `db:"id" json:"id"`
	Title                  string             `db:"title" json:"title"`
	Description            string             `db:"description" json:"description"`
	Type                   string             `db:"type" json:"type"`
	Date                   time.Time          `db:"date" json:"date"`
	Time                   string             `db:"time" json:"time"`
	Venue                  string             `db:"venue" json:"venue"`
	Status                 string             `db:"status" json:"status"`
	CreatedBy              string             `db:"created_by" json:"created_by"`
	CreatedByName          string             `db:"-" json:"created_by_name,omitempty"`
	PosterURL              string             `db:"poster_url" json:"poster_url"`
	QRCodeID               string             `db:"qr_code_id" json:"qr_code_id"`
	EventMode              string             `db:"event_mode" json:"event_mode"`
	MeetingLink            string             `db:"meeting_link" json:"meeting_link,omitempty"`
	RegistrationLimit      int                `db:"registration_limit" json:"registration_limit"`
	RegistrationFee        int                `db:"registration_fee" json:"registration_fee"`
	AttendanceQuestion     AttendanceQuestion `db:"-" json:"attendance_question,omitempty"`
	CertificateTemplateURL string             `db:"certificate_template_url" json:"certificate_template_url"`
	Attendees              []Attendee         `db:"-" json:"attendees,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// AttendanceQuestion is the optional challenge used to prove physical
// presence during self-service check-in.
type AttendanceQuestion struct {
	Question      string   `json:"question,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

func (q AttendanceQuestion) Defined() bool {
	return q.Question != ""
}

type Attendee struct {
	ID                int64     `db:"id" json:"-"`
	EventID           string    `db:"event_id" json:"-"`
	UserID            string    `db:"user_id" json:"user_id"`
	UserName          string    `db:"-" json:"user_name,omitempty"`
	UserEmail         string    `db:"-" json:"user_email,omitempty"`
	RegisteredCollege string    `db:"registered_college" json:"registered_college"`
	IsAttended        bool      `db:"is_attended" json:"is_attended"`
	PaymentID         *string   `db:"payment_id" json:"payment_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

type User struct {
	ID                   string     `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Email                string     `db:"email" json:"email"`
	Role                 string     `db:"role" json:"role"`
	ProfileImageURL      string     `db:"profile_image_url" json:"profile_image_url"`
	ResetPasswordToken   string     `db:"reset_password_token" json:"-"`
	ResetPasswordExpires *time.Time `db:"reset_password_expires" json:"-"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

type Feedback struct {
	ID        int64     `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	UserName  string    `db:"-" json:"user_name,omitempty"`
	Comment   string    `db:"comment" json:"comment"`
	Rating    int       `db:"rating" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StartInstant combines a calendar date with a wall-clock "HH:MM" string
// into the single instant used for every timing decision. A blank or
// malformed wall clock resolves to the start of the day.
func StartInstant(date time.Time, wallClock string) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if wallClock == "" {
		return day
	}
	t, err := time.Parse("15:04", wallClock)
	if err != nil {
		return day
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// StartInstant resolves the event's start instant from its date and time fields.
func (e *Event) StartInstant() time.Time {
	return StartInstant(e.Date, e.Time)
}

// OpenForRegistration reports whether the moderation state permits new
// registrations. Every other lifecycle gate derives from this predicate.
func (e *Event) OpenForRegistration() bool {
	return e.Status == StatusApproved
}
