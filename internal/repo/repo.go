package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventsphere/internal/model"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrEventNotApproved      = errors.New("event not approved")
	ErrEventPassed           = errors.New("event already passed")
	ErrEventFull             = errors.New("event is full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrNotRegistered         = errors.New("not registered")
	ErrAlreadyMarked         = errors.New("attendance already marked")
)

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) (string, error)
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetEventByQRCodeID(ctx context.Context, qrCodeID string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	UpdateEventStatus(ctx context.Context, id, status string) (*model.Event, error)
	SetCertificateTemplate(ctx context.Context, id, templateURL string) error

	RegisterAttendeeTx(ctx context.Context, eventID string, att *model.Attendee, now time.Time) (*model.Event, error)
	GetAttendee(ctx context.Context, eventID, userID string) (*model.Attendee, error)
	FindAttendeeByEmail(ctx context.Context, eventID, email string) (*model.Attendee, error)
	MarkAttendedOnce(ctx context.Context, eventID, userID string) error
	MarkAttended(ctx context.Context, eventID, userID string) error

	ListAttendedTypes(ctx context.Context, userID string) ([]string, error)
	ListRecommendedEvents(ctx context.Context, userID string, types []string, from time.Time, limit int) ([]model.Event, error)

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, email string) (*model.User, error)
	SetProfileImage(ctx context.Context, id, imageURL string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id, role string) (*model.User, error)
	SetResetToken(ctx context.Context, userID, token string, expires time.Time) error

	CreateFeedback(ctx context.Context, f *model.Feedback) (int64, error)
	GetFeedbackByEventID(ctx context.Context, eventID string) ([]model.Feedback, error)

	CountEvents(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
	TotalRevenue(ctx context.Context) (int64, error)
	Ping() error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) Ping() error {
	return r.db.Master.Ping()
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const eventColumns = `
	id, title, description, type, date, time, venue, status, created_by,
	poster_url, qr_code_id, event_mode, meeting_link,
	registration_limit, registration_fee,
	attendance_question, attendance_options, attendance_answer,
	certificate_template_url, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var options string
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Type, &e.Date, &e.Time, &e.Venue,
		&e.Status, &e.CreatedBy, &e.PosterURL, &e.QRCodeID, &e.EventMode,
		&e.MeetingLink, &e.RegistrationLimit, &e.RegistrationFee,
		&e.AttendanceQuestion.Question, &options, &e.AttendanceQuestion.CorrectAnswer,
		&e.CertificateTemplateURL, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if options != "" {
		if err := json.Unmarshal([]byte(options), &e.AttendanceQuestion.Options); err != nil {
			return nil, fmt.Errorf("failed to decode attendance options: %w", err)
		}
	}
	return &e, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (string, error) {
	e.ID = uuid.NewString()
	// The public check-in key is minted exactly once, here, and never reused
	// for anything else. It is deliberately not the event id.
	e.QRCodeID = uuid.NewString()

	options := ""
	if len(e.AttendanceQuestion.Options) > 0 {
		raw, err := json.Marshal(e.AttendanceQuestion.Options)
		if err != nil {
			return "", fmt.Errorf("failed to encode attendance options: %w", err)
		}
		options = string(raw)
	}

	query := `
		INSERT INTO events (
			id, title, description, type, date, time, venue, status, created_by,
			poster_url, qr_code_id, event_mode, meeting_link,
			registration_limit, registration_fee,
			attendance_question, attendance_options, attendance_answer,
			certificate_template_url
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id
	`

	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.Type, e.Date, e.Time, e.Venue,
		model.StatusPending, e.CreatedBy, e.PosterURL, e.QRCodeID, e.EventMode,
		e.MeetingLink, e.RegistrationLimit, e.RegistrationFee,
		e.AttendanceQuestion.Question, options, e.AttendanceQuestion.CorrectAnswer,
		e.CertificateTemplateURL,
	)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	e.Status = model.StatusPending
	return id, nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (r *repository) GetEventByQRCodeID(ctx context.Context, qrCodeID string) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE qr_code_id = $1`
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, qrCodeID))
	if err != nil {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT e.id, e.title, e.description, e.type, e.date, e.time, e.venue,
		       e.status, e.created_by, e.poster_url, e.qr_code_id, e.event_mode,
		       e.meeting_link, e.registration_limit, e.registration_fee,
		       e.attendance_question, e.attendance_options, e.attendance_answer,
		       e.certificate_template_url, e.created_at, e.updated_at,
		       COALESCE(u.name, '')
		FROM events e
		LEFT JOIN users u ON u.id = e.created_by
		ORDER BY e.date DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
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
		if options != "" {
			if err := json.Unmarshal([]byte(options), &e.AttendanceQuestion.Options); err != nil {
				return nil, fmt.Errorf("failed to decode attendance options: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	for i := range events {
		attendees, err := r.getAttendees(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Attendees = attendees
	}

	return events, nil
}

func (r *repository) getAttendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	query := `
		SELECT a.id, a.event_id, a.user_id, a.registered_college, a.is_attended,
		       a.payment_id, a.created_at, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM attendees a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.event_id = $1
		ORDER BY a.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(
			&a.ID, &a.EventID, &a.UserID, &a.RegisteredCollege, &a.IsAttended,
			&a.PaymentID, &a.CreatedAt, &a.UserName, &a.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

func (r *repository) UpdateEventStatus(ctx context.Context, id, status string) (*model.Event, error) {
	query := `
		UPDATE events
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + eventColumns

	e, err := scanEvent(r.db.Master.QueryRowContext(ctx, query, status, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to update event status: %w", err)
	}
	return e, nil
}

func (r *repository) SetCertificateTemplate(ctx context.Context, id, templateURL string) error {
	query := `
		UPDATE events
		SET certificate_template_url = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id
	`

	var got string
	if err := r.db.Master.QueryRowContext(ctx, query, templateURL, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to set certificate template: %w", err)
	}
	return nil
}

// RegisterAttendeeTx runs the whole admission sequence inside one
// transaction. The event row is locked first so that racing registrations
// serialize on the duplicate and capacity checks; two concurrent calls can
// never both pass them and both append.
func (r *repository) RegisterAttendeeTx(ctx context.Context, eventID string, att *model.Attendee, now time.Time) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	event, err := scanEvent(tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID))
	if err != nil {
		_ = tx.Rollback()
		return nil, ErrEventNotFound
	}

	if !event.OpenForRegistration() {
		_ = tx.Rollback()
		return nil, ErrEventNotApproved
	}

	if event.StartInstant().Before(now) {
		_ = tx.Rollback()
		return nil, ErrEventPassed
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendees WHERE event_id = $1 AND user_id = $2
		)
	`, eventID, att.UserID).Scan(&exists)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if exists {
		_ = tx.Rollback()
		return nil, ErrDuplicateRegistration
	}

	if event.RegistrationLimit > 0 {
		var count int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM attendees WHERE event_id = $1
		`, eventID).Scan(&count)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to count attendees: %w", err)
		}
		if count >= event.RegistrationLimit {
			_ = tx.Rollback()
			return nil, ErrEventFull
		}
	}

	if event.RegistrationFee > 0 {
		// No real settlement happens anywhere in the system. The reference
		// only has to be opaque and unique.
		ref := "mock_payment_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		att.PaymentID = &ref
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendees (event_id, user_id, registered_college, payment_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, eventID, att.UserID, att.RegisteredCollege, att.PaymentID).Scan(&att.ID, &att.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	att.EventID = eventID
	return event, nil
}

func (r *repository) GetAttendee(ctx context.Context, eventID, userID string) (*model.Attendee, error) {
	query := `
		SELECT id, event_id, user_id, registered_college, is_attended, payment_id, created_at
		FROM attendees
		WHERE event_id = $1 AND user_id = $2
	`

	var a model.Attendee
	err := r.db.QueryRowContext(ctx, query, eventID, userID).Scan(
		&a.ID, &a.EventID, &a.UserID, &a.RegisteredCollege, &a.IsAttended,
		&a.PaymentID, &a.CreatedAt,
	)
	if err != nil {
		return nil, ErrNotRegistered
	}
	return &a, nil
}

func (r *repository) FindAttendeeByEmail(ctx context.Context, eventID, email string) (*model.Attendee, error) {
	query := `
		SELECT a.id, a.event_id, a.user_id, a.registered_college, a.is_attended,
		       a.payment_id, a.created_at, u.name, u.email
		FROM attendees a
		JOIN users u ON u.id = a.user_id
		WHERE a.event_id = $1 AND LOWER(u.email) = LOWER($2)
	`

	var a model.Attendee
	err := r.db.QueryRowContext(ctx, query, eventID, email).Scan(
		&a.ID, &a.EventID, &a.UserID, &a.RegisteredCollege, &a.IsAttended,
		&a.PaymentID, &a.CreatedAt, &a.UserName, &a.UserEmail,
	)
	if err != nil {
		return nil, ErrNotRegistered
	}
	return &a, nil
}

// MarkAttendedOnce flips the attended flag through a single conditional
// update. The WHERE clause is the race guard: whoever loses the race sees
// zero rows and reports the conflict.
func (r *repository) MarkAttendedOnce(ctx context.Context, eventID, userID string) error {
	res, err := r.db.Master.ExecContext(ctx, `
		UPDATE attendees
		SET is_attended = TRUE
		WHERE event_id = $1 AND user_id = $2 AND is_attended = FALSE
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyMarked
	}
	return nil
}

// MarkAttended is the operator path: re-marking an already attended record
// is permitted, so the update is unconditional on the flag.
func (r *repository) MarkAttended(ctx context.Context, eventID, userID string) error {
	res, err := r.db.Master.ExecContext(ctx, `
		UPDATE attendees
		SET is_attended = TRUE
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotRegistered
	}
	return nil
}
