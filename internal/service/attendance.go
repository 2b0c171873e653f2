package service

import (
	"fmt"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/repo"
	"eventsphere/pkg/validator"
)

// QRAttendance is the public self-service check-in keyed by the event's
// QR token. There is deliberately no timing gate here: attendees scan the
// code at the venue whenever the event actually happens.
func (s *service) QRAttendance(ctx *ginext.Context) {
	qrCodeID := ctx.Param("id")

	var req dto.QRAttendanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event, err := s.repo.GetEventByQRCodeID(ctx, qrCodeID)
	if err != nil {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found or not active")
		return
	}
	if !event.OpenForRegistration() {
		dto.BadResponseError(ctx, dto.EventNotApproved, "Event not found or not active")
		return
	}

	// Matching is by email only; the submitted name is not consulted.
	attendee, err := s.repo.FindAttendeeByEmail(ctx, event.ID, req.Email)
	if err != nil {
		dto.NotFoundError(ctx, dto.NotRegistered, "You are not registered for this event")
		return
	}
	if attendee.IsAttended {
		dto.ConflictError(ctx, dto.AlreadyMarked, "Attendance already marked")
		return
	}

	if event.AttendanceQuestion.Defined() {
		if req.Answer == "" || !strings.EqualFold(event.AttendanceQuestion.CorrectAnswer, req.Answer) {
			dto.UnauthorizedError(ctx, dto.WrongAnswer, "Incorrect answer to the verification question")
			return
		}
	}

	if err := s.repo.MarkAttendedOnce(ctx, event.ID, attendee.UserID); err != nil {
		if err == repo.ErrAlreadyMarked {
			dto.ConflictError(ctx, dto.AlreadyMarked, "Attendance already marked")
			return
		}
		s.log.Error().Err(err).Msg("failed to mark attendance")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("user_id", attendee.UserID).
		Msg("attendance marked via QR check-in")
	dto.SuccessResponse(ctx, map[string]string{"message": "Attendance marked successfully!"})
}

// ManualAttendance lets the event's owning club or an admin mark a student
// attended. Re-marking an already attended record is allowed here.
func (s *service) ManualAttendance(ctx *ginext.Context) {
	actorID, role := actor(ctx)
	if role != model.RoleClub && role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Access denied")
		return
	}

	var req dto.ManualAttendanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event, err := s.repo.GetEventByID(ctx, ctx.Param("id"))
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}
	if role == model.RoleClub && event.CreatedBy != actorID {
		dto.ForbiddenError(ctx, "You can only manage your own events")
		return
	}

	if err := s.repo.MarkAttended(ctx, event.ID, req.StudentID); err != nil {
		if err == repo.ErrNotRegistered {
			dto.BadResponseError(ctx, dto.NotRegistered, "Student not registered")
			return
		}
		s.log.Error().Err(err).Msg("failed to mark attendance")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("student_id", req.StudentID).
		Msg("attendance marked by operator")
	dto.SuccessResponse(ctx, map[string]string{"message": "Attendance marked successfully."})
}
