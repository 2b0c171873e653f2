package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventsphere/internal/model"
)

const userColumns = `
	id, name, email, role, profile_image_url,
	COALESCE(reset_password_token, ''), reset_password_expires,
	created_at, updated_at
`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.ProfileImageURL,
		&u.ResetPasswordToken, &u.ResetPasswordExpires,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (r *repository) UpdateUserProfile(ctx context.Context, id, name, email string) (*model.User, error) {
	query := `
		UPDATE users
		SET name  = COALESCE(NULLIF($1, ''), name),
		    email = COALESCE(NULLIF($2, ''), email),
		    updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns

	u, err := scanUser(r.db.Master.QueryRowContext(ctx, query, name, email, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}

func (r *repository) SetProfileImage(ctx context.Context, id, imageURL string) (*model.User, error) {
	query := `
		UPDATE users
		SET profile_image_url = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	u, err := scanUser(r.db.Master.QueryRowContext(ctx, query, imageURL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set profile image: %w", err)
	}
	return u, nil
}

func (r *repository) ListUsers(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *repository) UpdateUserRole(ctx context.Context, id, role string) (*model.User, error) {
	query := `
		UPDATE users
		SET role = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	u, err := scanUser(r.db.Master.QueryRowContext(ctx, query, role, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return u, nil
}

func (r *repository) SetResetToken(ctx context.Context, userID, token string, expires time.Time) error {
	query := `
		UPDATE users
		SET reset_password_token = $1, reset_password_expires = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING id
	`

	var got string
	if err := r.db.Master.QueryRowContext(ctx, query, token, expires, userID).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return nil
}

func (r *repository) CreateFeedback(ctx context.Context, f *model.Feedback) (int64, error) {
	query := `
		INSERT INTO feedback (event_id, user_id, comment, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := r.db.Master.QueryRowContext(ctx, query, f.EventID, f.UserID, f.Comment, f.Rating).
		Scan(&f.ID, &f.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return f.ID, nil
}

func (r *repository) GetFeedbackByEventID(ctx context.Context, eventID string) ([]model.Feedback, error) {
	query := `
		SELECT f.id, f.event_id, f.user_id, f.comment, f.rating, f.created_at,
		       COALESCE(u.name, '')
		FROM feedback f
		LEFT JOIN users u ON u.id = f.user_id
		WHERE f.event_id = $1
		ORDER BY f.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	defer rows.Close()

	var items []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.EventID, &f.UserID, &f.Comment, &f.Rating, &f.CreatedAt, &f.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *repository) ListAttendedTypes(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT e.type
		FROM events e
		JOIN attendees a ON a.event_id = e.id
		WHERE a.user_id = $1 AND a.is_attended AND e.status = $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list attended types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ListRecommendedEvents returns approved events dated on or after the given
// day that the user has not joined, optionally restricted to a type set.
func (r *repository) ListRecommendedEvents(ctx context.Context, userID string, types []string, from time.Time, limit int) ([]model.Event, error) {
	query := `
		SELECT e.id, e.title, e.description, e.type, e.date, e.time, e.venue,
		       e.status, e.created_by, e.poster_url, e.qr_code_id, e.event_mode,
		       e.meeting_link, e.registration_limit, e.registration_fee,
		       e.attendance_question, e.attendance_options, e.attendance_answer,
		       e.certificate_template_url, e.created_at, e.updated_at,
		       COALESCE(u.name, '')
		FROM events e
		LEFT JOIN users u ON u.id = e.created_by
		WHERE e.status = $1
		  AND e.date >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM attendees a WHERE a.event_id = e.id AND a.user_id = $3
		  )
		  AND ($4 OR e.type = ANY($5))
		ORDER BY e.date ASC
		LIMIT $6
	`

	rows, err := r.db.QueryContext(ctx, query,
		model.StatusApproved, from, userID, len(types) == 0, pq.Array(types), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommended events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var options string
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Type, &e.Date, &e.Time, &e.Venue,
			&e.Status, &e.CreatedBy, &e.PosterURL, &e.QRCodeID, &e.EventMode,
			&e.MeetingLink, &e.RegistrationLimit, &e.RegistrationFee,
			&e.AttendanceQuestion.Question, &options, &e.AttendanceQuestion.CorrectAnswer,
			&e.CertificateTemplateURL, &e.CreatedAt, &e.UpdatedAt,
			&e.CreatedByName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *repository) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (r *repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// TotalRevenue sums attendee count times registration fee over approved
// events. Fees are mock settlements, the number is informational only.
func (r *repository) TotalRevenue(ctx context.Context) (int64, error) {
	query := `
		SELECT COALESCE(SUM(s.cnt * s.fee), 0)
		FROM (
			SELECT e.registration_fee AS fee, COUNT(a.id) AS cnt
			FROM events e
			LEFT JOIN attendees a ON a.event_id = e.id
			WHERE e.status = $1
			GROUP BY e.id
		) s
	`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, model.StatusApproved).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}
