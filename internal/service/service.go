package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventsphere/cmd/middleware"
	"eventsphere/internal/certgen"
	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/rabbit"
	"eventsphere/internal/repo"
	"eventsphere/internal/uploads"
	"eventsphere/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	UpdateEventStatus(ctx *ginext.Context)
	Register(ctx *ginext.Context)

	QRAttendance(ctx *ginext.Context)
	ManualAttendance(ctx *ginext.Context)

	UploadCertificateTemplate(ctx *ginext.Context)
	DownloadCertificate(ctx *ginext.Context)

	GetRecommendations(ctx *ginext.Context)

	SubmitFeedback(ctx *ginext.Context)
	GetFeedback(ctx *ginext.Context)

	GetProfile(ctx *ginext.Context)
	UpdateProfile(ctx *ginext.Context)
	UploadProfileImage(ctx *ginext.Context)
	ListUsers(ctx *ginext.Context)
	UpdateUserRole(ctx *ginext.Context)
	ForgotPassword(ctx *ginext.Context)

	AnalyticsSummary(ctx *ginext.Context)
}

type service struct {
	repo        repo.Repository
	log         *zerolog.Logger
	queue       rabbit.Publisher
	storage     *uploads.Storage
	renderer    certgen.Renderer
	frontendURL string
}

func NewService(
	repository repo.Repository,
	logger *zerolog.Logger,
	queue rabbit.Publisher,
	storage *uploads.Storage,
	renderer certgen.Renderer,
	frontendURL string,
) Service {
	return &service{
		repo:        repository,
		log:         logger,
		queue:       queue,
		storage:     storage,
		renderer:    renderer,
		frontendURL: frontendURL,
	}
}

func actor(ctx *ginext.Context) (id, role string) {
	return ctx.GetString(middleware.CtxUserID), ctx.GetString(middleware.CtxUserRole)
}

// notify publishes a message to the mail queue. Failures are logged and
// swallowed: notification is best-effort and must never fail a request
// whose state change already committed.
func (s *service) notify(msg dto.NotificationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification message")
		return
	}
	if err := s.queue.Publish(payload); err != nil {
		s.log.Warn().Err(err).Str("kind", msg.Kind).Msg("failed to publish notification")
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	_, role := actor(ctx)
	if role != model.RoleClub {
		dto.ForbiddenError(ctx, "Only club accounts can create events")
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBind(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		dto.FieldBadFormatError(ctx, "date")
		return
	}

	var question model.AttendanceQuestion
	if req.AttendanceQuestion != "" {
		if err := json.Unmarshal([]byte(req.AttendanceQuestion), &question); err != nil {
			dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid format for attendance question data")
			return
		}
	}

	posterURL := ""
	if fh, err := ctx.FormFile("poster"); err == nil {
		posterURL, err = s.storage.Save(uploads.KindPoster, fh)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to store poster")
			dto.BadResponseError(ctx, dto.FieldBadFormat, "Poster must be an image file")
			return
		}
	}

	eventType := req.Type
	if eventType == "" {
		eventType = "Other"
	}
	eventMode := req.EventMode
	if eventMode == "" {
		eventMode = model.ModeOffline
	}
	meetingLink := ""
	if eventMode == model.ModeOnline {
		meetingLink = req.MeetingLink
	}

	userID, _ := actor(ctx)
	event := &model.Event{
		Title:              req.Title,
		Description:        req.Description,
		Type:               eventType,
		Date:               date,
		Time:               req.Time,
		Venue:              req.Venue,
		CreatedBy:          userID,
		PosterURL:          posterURL,
		EventMode:          eventMode,
		MeetingLink:        meetingLink,
		RegistrationLimit:  req.RegistrationLimit,
		RegistrationFee:    req.RegistrationFee,
		AttendanceQuestion: question,
	}

	id, err := s.repo.CreateEvent(ctx, event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", id).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, event)
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch events")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, events)
}

func (s *service) UpdateEventStatus(ctx *ginext.Context) {
	_, role := actor(ctx)
	if role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Only admin can approve or reject events")
		return
	}

	var req dto.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event, err := s.repo.UpdateEventStatus(ctx, ctx.Param("id"), req.Status)
	if err != nil {
		if err == repo.ErrEventNotFound {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to update event status")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("status", event.Status).
		Msg("event status updated")
	dto.SuccessResponse(ctx, event)
}

func (s *service) Register(ctx *ginext.Context) {
	eventID := ctx.Param("id")
	userID, _ := actor(ctx)

	// The body carries only the optional college name; an empty body is fine.
	var req dto.RegisterRequest
	_ = ctx.ShouldBindJSON(&req)

	attendee := &model.Attendee{
		UserID:            userID,
		RegisteredCollege: req.CollegeName,
	}

	event, err := s.repo.RegisterAttendeeTx(ctx.Request.Context(), eventID, attendee, time.Now())
	if err != nil {
		switch err {
		case repo.ErrEventNotFound:
			dto.EventNotFoundError(ctx)
		case repo.ErrEventNotApproved:
			dto.BadResponseError(ctx, dto.EventNotApproved, "Cannot register for this event")
		case repo.ErrEventPassed:
			dto.BadResponseError(ctx, dto.EventAlreadyPassed, "This event has already passed and registration is closed")
		case repo.ErrDuplicateRegistration:
			dto.ConflictError(ctx, dto.AlreadyRegistered, "You are already registered")
		case repo.ErrEventFull:
			dto.ConflictError(ctx, dto.EventFull, "Sorry, this event is full")
		default:
			s.log.Error().Err(err).Msg("failed to register attendee")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("event_id", eventID).
		Str("user_id", userID).
		Msg("registration created successfully")

	// The roster mutation is committed; everything past this point is
	// best-effort and never rolls it back.
	if student, err := s.repo.GetUserByID(ctx, userID); err != nil {
		s.log.Warn().Err(err).Msg("failed to load student for confirmation email")
	} else {
		s.notify(dto.NotificationMessage{
			Kind:       dto.NotifyRegistrationConfirmation,
			Email:      student.Email,
			EventTitle: event.Title,
			EventDate:  event.Date,
			EventTime:  event.Time,
		})
	}

	resp := dto.RegistrationResponse{
		EventID: eventID,
		UserID:  userID,
		Message: "Registered successfully!",
	}
	if attendee.PaymentID != nil {
		resp.PaymentID = *attendee.PaymentID
	}
	dto.SuccessCreatedResponse(ctx, resp)
}
