package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/uploads"
)

func (s *service) UploadCertificateTemplate(ctx *ginext.Context) {
	actorID, role := actor(ctx)
	if role != model.RoleClub {
		dto.ForbiddenError(ctx, "Only club accounts can upload certificate templates")
		return
	}

	event, err := s.repo.GetEventByID(ctx, ctx.Param("id"))
	if err != nil || event.CreatedBy != actorID {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found or you are not the owner")
		return
	}

	fh, err := ctx.FormFile("certificate")
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "No PDF file was uploaded")
		return
	}

	templateURL, err := s.storage.Save(uploads.KindCertTemplate, fh)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to store certificate template")
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Template must be a PDF file")
		return
	}

	if err := s.repo.SetCertificateTemplate(ctx, event.ID, templateURL); err != nil {
		s.log.Error().Err(err).Msg("failed to persist certificate template reference")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", event.ID).Msg("certificate template uploaded")
	dto.SuccessResponse(ctx, map[string]string{
		"message":                  "Certificate template uploaded successfully!",
		"certificate_template_url": templateURL,
	})
}

// DownloadCertificate evaluates the eligibility gate and, if it holds,
// delegates to the renderer. Checks run in a fixed order and the first
// failure wins.
func (s *service) DownloadCertificate(ctx *ginext.Context) {
	eventID := ctx.Param("eventId")
	studentID := ctx.Param("studentId")

	actorID, role := actor(ctx)
	if actorID != studentID && role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Access Denied")
		return
	}

	event, eventErr := s.repo.GetEventByID(ctx, eventID)
	student, studentErr := s.repo.GetUserByID(ctx, studentID)
	if eventErr != nil || studentErr != nil {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event or student not found")
		return
	}

	if event.StartInstant().After(time.Now()) {
		dto.BadResponseError(ctx, dto.CertificateNotReady, "Certificate not available until after the event")
		return
	}

	attendee, err := s.repo.GetAttendee(ctx, eventID, studentID)
	if err != nil || !attendee.IsAttended {
		dto.BadResponseError(ctx, dto.AttendanceNotMarked, "Certificate not available. Attendance was not marked")
		return
	}

	if event.CertificateTemplateURL == "" {
		dto.BadResponseError(ctx, dto.TemplateMissing, "A certificate template has not been uploaded for this event")
		return
	}

	templatePath, err := s.storage.Resolve(event.CertificateTemplateURL)
	if err != nil {
		s.log.Error().Err(err).Msg("stored template reference does not resolve")
		dto.RenderFailedError(ctx)
		return
	}

	pdfBytes, err := s.renderer.Render(templatePath, student.Name, event.Title, event.Date)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("certificate rendering failed")
		dto.RenderFailedError(ctx)
		return
	}

	filename := fmt.Sprintf("Certificate_%s.pdf", strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, event.Title))

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	ctx.Data(200, "application/pdf", pdfBytes)
}
