package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/repo"
	"eventsphere/internal/uploads"
	"eventsphere/pkg/validator"
)

// GetRecommendations ranks upcoming approved events by the categories the
// student has previously attended, falling back to any upcoming events for
// students without attendance history.
func (s *service) GetRecommendations(ctx *ginext.Context) {
	userID, role := actor(ctx)
	if role != model.RoleStudent {
		dto.ForbiddenError(ctx, "Access denied")
		return
	}

	types, err := s.repo.ListAttendedTypes(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list attended types")
		dto.InternalServerError(ctx)
		return
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := s.repo.ListRecommendedEvents(ctx, userID, types, today, 5)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list recommended events")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, events)
}

func (s *service) SubmitFeedback(ctx *ginext.Context) {
	userID, _ := actor(ctx)

	var req dto.SubmitFeedbackRequest
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

	feedback := &model.Feedback{
		EventID: event.ID,
		UserID:  userID,
		Comment: req.Comment,
		Rating:  req.Rating,
	}
	if _, err := s.repo.CreateFeedback(ctx, feedback); err != nil {
		s.log.Error().Err(err).Msg("failed to submit feedback")
		dto.BadResponseError(ctx, dto.FeedbackRejected, "Failed to submit feedback")
		return
	}

	dto.SuccessCreatedResponse(ctx, feedback)
}

func (s *service) GetFeedback(ctx *ginext.Context) {
	items, err := s.repo.GetFeedbackByEventID(ctx, ctx.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get feedback")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, items)
}

func (s *service) GetProfile(ctx *ginext.Context) {
	userID, _ := actor(ctx)

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		dto.NotFoundError(ctx, dto.UserNotFound, "User not found")
		return
	}
	dto.SuccessResponse(ctx, dto.NewUserResponse(user))
}

func (s *service) UpdateProfile(ctx *ginext.Context) {
	userID, _ := actor(ctx)

	var req dto.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	user, err := s.repo.UpdateUserProfile(ctx, userID, req.Name, req.Email)
	if err != nil {
		if err == repo.ErrUserNotFound {
			dto.NotFoundError(ctx, dto.UserNotFound, "User not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to update profile")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.NewUserResponse(user))
}

func (s *service) UploadProfileImage(ctx *ginext.Context) {
	userID, _ := actor(ctx)

	fh, err := ctx.FormFile("profileImage")
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "No image file was uploaded")
		return
	}

	imageURL, err := s.storage.Save(uploads.KindProfile, fh)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to store profile image")
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Profile image must be an image file")
		return
	}

	user, err := s.repo.SetProfileImage(ctx, userID, imageURL)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to persist profile image reference")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.NewUserResponse(user))
}

func (s *service) ListUsers(ctx *ginext.Context) {
	_, role := actor(ctx)
	if role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Access denied")
		return
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list users")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, dto.NewUserResponse(&users[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) UpdateUserRole(ctx *ginext.Context) {
	actorID, role := actor(ctx)
	if role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Access denied")
		return
	}
	if ctx.Param("id") == actorID {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Admin cannot change their own role")
		return
	}

	var req dto.UpdateRoleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	user, err := s.repo.UpdateUserRole(ctx, ctx.Param("id"), req.Role)
	if err != nil {
		if err == repo.ErrUserNotFound {
			dto.NotFoundError(ctx, dto.UserNotFound, "User not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to update user role")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("role", user.Role).
		Msg("user role updated")
	dto.SuccessResponse(ctx, dto.NewUserResponse(user))
}

// ForgotPassword issues a reset token and mails a reset link. The response
// is identical whether or not the address is known.
func (s *service) ForgotPassword(ctx *ginext.Context) {
	var req dto.ForgotPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	opaque := map[string]string{"message": "If a user with that email exists, a reset link has been sent."}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		dto.SuccessResponse(ctx, opaque)
		return
	}

	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		s.log.Error().Err(err).Msg("failed to generate reset token")
		dto.InternalServerError(ctx)
		return
	}
	token := hex.EncodeToString(raw)

	if err := s.repo.SetResetToken(ctx, user.ID, token, time.Now().Add(time.Hour)); err != nil {
		s.log.Error().Err(err).Msg("failed to persist reset token")
		dto.InternalServerError(ctx)
		return
	}

	s.notify(dto.NotificationMessage{
		Kind:     dto.NotifyPasswordReset,
		Email:    user.Email,
		ResetURL: fmt.Sprintf("%s/reset-password.html?token=%s", s.frontendURL, token),
	})

	dto.SuccessResponse(ctx, opaque)
}

func (s *service) AnalyticsSummary(ctx *ginext.Context) {
	_, role := actor(ctx)
	if role != model.RoleAdmin {
		dto.ForbiddenError(ctx, "Access denied: Admins only")
		return
	}

	dbStatus := "Connected"
	if err := s.repo.Ping(); err != nil {
		dbStatus = "Disconnected"
	}

	revenue, err := s.repo.TotalRevenue(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sum revenue")
		dto.InternalServerError(ctx)
		return
	}

	totalEvents, err := s.repo.CountEvents(ctx)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	totalUsers, err := s.repo.CountUsers(ctx)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	uploadsSize, err := s.storage.TotalSize()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to measure uploads dir")
		uploadsSize = 0
	}

	dto.SuccessResponse(ctx, dto.AnalyticsSummaryResponse{
		DBStatus:         dbStatus,
		TotalRevenue:     revenue,
		TotalUploadsSize: fmt.Sprintf("%.2f MB", float64(uploadsSize)/(1024*1024)),
		TotalEvents:      totalEvents,
		TotalUsers:       totalUsers,
	})
}
