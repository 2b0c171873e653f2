package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound    = "EVENT_NOT_FOUND"
	UserNotFound     = "USER_NOT_FOUND"
	FeedbackRejected = "FEEDBACK_REJECTED"
	AccessDenied     = "ACCESS_DENIED"

	EventNotApproved   = "EVENT_NOT_APPROVED"
	EventAlreadyPassed = "EVENT_ALREADY_PASSED"
	AlreadyRegistered  = "ALREADY_REGISTERED"
	EventFull          = "EVENT_FULL"

	NotRegistered = "NOT_REGISTERED"
	AlreadyMarked = "ATTENDANCE_ALREADY_MARKED"
	WrongAnswer   = "WRONG_ANSWER"
	TokenInvalid  = "TOKEN_INVALID"

	CertificateNotReady = "CERTIFICATE_NOT_READY"
	AttendanceNotMarked = "ATTENDANCE_NOT_MARKED"
	TemplateMissing     = "TEMPLATE_MISSING"
	RenderFailed        = "CERTIFICATE_RENDER_FAILED"
)

type CreateEventRequest struct {
	Title             string `form:"title" validate:"required,max=255"`
	Description       string `form:"description" validate:"required"`
	Type              string `form:"type" validate:"omitempty,eventtype"`
	Date              string `form:"date" validate:"required"`
	Time              string `form:"time" validate:"required,hhmm"`
	Venue             string `form:"venue" validate:"required"`
	EventMode         string `form:"eventMode" validate:"omitempty,oneof=Online Offline"`
	MeetingLink       string `form:"meetingLink"`
	RegistrationLimit int    `form:"registrationLimit" validate:"gte=0"`
	RegistrationFee   int    `form:"registrationFee" validate:"gte=0"`
	// JSON-encoded model.AttendanceQuestion, arrives as a plain form field
	// next to the poster file.
	AttendanceQuestion string `form:"attendanceQuestion"`
}

type RegisterRequest struct {
	CollegeName string `json:"collegeName" validate:"omitempty,max=255"`
}

type QRAttendanceRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name"`
	Answer string `json:"answer"`
}

type ManualAttendanceRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

type SubmitFeedbackRequest struct {
	Comment string `json:"comment"`
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,max=255"`
	Email string `json:"email" validate:"omitempty,email"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student club admin"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// NotificationMessage is the payload exchanged with the mail queue.
type NotificationMessage struct {
	Kind       string    `json:"kind"`
	Email      string    `json:"email"`
	EventTitle string    `json:"event_title,omitempty"`
	EventDate  time.Time `json:"event_date,omitempty"`
	EventTime  string    `json:"event_time,omitempty"`
	ResetURL   string    `json:"reset_url,omitempty"`
}

const (
	NotifyRegistrationConfirmation = "registration_confirmation"
	NotifyPasswordReset            = "password_reset"
)

type RegistrationResponse struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Message   string `json:"message"`
}

type AnalyticsSummaryResponse struct {
	DBStatus         string `json:"db_status"`
	TotalRevenue     int64  `json:"total_revenue"`
	TotalUploadsSize string `json:"total_uploads_size"`
	TotalEvents      int    `json:"total_events"`
	TotalUsers       int    `json:"total_users"`
}

type UserResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	ProfileImageURL string `json:"profile_image_url"`
}

func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		ProfileImageURL: u.ProfileImageURL,
	}
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func errorResponse(c *ginext.Context, httpStatus int, code, desc string) {
	c.JSON(httpStatus, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, 400, code, desc)
}

func NotFoundError(c *ginext.Context, code, desc string) {
	errorResponse(c, 404, code, desc)
}

func ForbiddenError(c *ginext.Context, desc string) {
	errorResponse(c, 403, AccessDenied, desc)
}

func ConflictError(c *ginext.Context, code, desc string) {
	errorResponse(c, 409, code, desc)
}

func UnauthorizedError(c *ginext.Context, code, desc string) {
	errorResponse(c, 401, code, desc)
}

func RenderFailedError(c *ginext.Context) {
	errorResponse(c, 500, RenderFailed, "Failed to generate certificate")
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, 500, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func EventNotFoundError(c *ginext.Context) {
	NotFoundError(c, EventNotFound, "Event not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
