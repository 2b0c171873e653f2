package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/api/api"
	"eventsphere/internal/certgen"
	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/repo"
	"eventsphere/internal/service"
	"eventsphere/internal/uploads"
)

const testSecret = "test-secret"

// fakeRepo is an in-memory repo.Repository with the same atomic admission
// semantics as the SQL implementation: one mutex plays the role of the row
// lock, so racing registrations serialize on the duplicate and capacity
// checks exactly as they do against Postgres.
type fakeRepo struct {
	mu             sync.Mutex
	events         map[string]*model.Event
	attendees      map[string][]*model.Attendee
	users          map[string]*model.User
	feedback       []model.Feedback
	nextAttendeeID int64
	pingErr        error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:    make(map[string]*model.Event),
		attendees: make(map[string][]*model.Attendee),
		users:     make(map[string]*model.User),
	}
}

func cloneEvent(e *model.Event) *model.Event {
	cp := *e
	cp.Attendees = append([]model.Attendee(nil), e.Attendees...)
	return &cp
}

func (f *fakeRepo) CreateEvent(_ context.Context, e *model.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.NewString()
	e.QRCodeID = uuid.NewString()
	e.Status = model.StatusPending
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	f.events[e.ID] = cloneEvent(e)
	return e.ID, nil
}

func (f *fakeRepo) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (f *fakeRepo) GetEventByQRCodeID(_ context.Context, qrCodeID string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.QRCodeID == qrCodeID {
			return cloneEvent(e), nil
		}
	}
	return nil, repo.ErrEventNotFound
}

func (f *fakeRepo) GetAllEvents(_ context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Event, 0, len(f.events))
	for _, e := range f.events {
		cp := *cloneEvent(e)
		for _, a := range f.attendees[e.ID] {
			cp.Attendees = append(cp.Attendees, *a)
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeRepo) UpdateEventStatus(_ context.Context, id, status string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	return cloneEvent(e), nil
}

func (f *fakeRepo) SetCertificateTemplate(_ context.Context, id, templateURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return repo.ErrEventNotFound
	}
	e.CertificateTemplateURL = templateURL
	return nil
}

func (f *fakeRepo) RegisterAttendeeTx(_ context.Context, eventID string, att *model.Attendee, now time.Time) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	if !event.OpenForRegistration() {
		return nil, repo.ErrEventNotApproved
	}
	if event.StartInstant().Before(now) {
		return nil, repo.ErrEventPassed
	}
	for _, a := range f.attendees[eventID] {
		if a.UserID == att.UserID {
			return nil, repo.ErrDuplicateRegistration
		}
	}
	if event.RegistrationLimit > 0 && len(f.attendees[eventID]) >= event.RegistrationLimit {
		return nil, repo.ErrEventFull
	}
	if event.RegistrationFee > 0 {
		ref := "mock_payment_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		att.PaymentID = &ref
	}

	f.nextAttendeeID++
	att.ID = f.nextAttendeeID
	att.EventID = eventID
	att.CreatedAt = time.Now()
	cp := *att
	f.attendees[eventID] = append(f.attendees[eventID], &cp)
	return cloneEvent(event), nil
}

func (f *fakeRepo) GetAttendee(_ context.Context, eventID, userID string) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendees[eventID] {
		if a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repo.ErrNotRegistered
}

func (f *fakeRepo) FindAttendeeByEmail(_ context.Context, eventID, email string) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendees[eventID] {
		u, ok := f.users[a.UserID]
		if ok && strings.EqualFold(u.Email, email) {
			cp := *a
			cp.UserName = u.Name
			cp.UserEmail = u.Email
			return &cp, nil
		}
	}
	return nil, repo.ErrNotRegistered
}

func (f *fakeRepo) MarkAttendedOnce(_ context.Context, eventID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendees[eventID] {
		if a.UserID == userID {
			if a.IsAttended {
				return repo.ErrAlreadyMarked
			}
			a.IsAttended = true
			return nil
		}
	}
	return repo.ErrAlreadyMarked
}

func (f *fakeRepo) MarkAttended(_ context.Context, eventID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendees[eventID] {
		if a.UserID == userID {
			a.IsAttended = true
			return nil
		}
	}
	return repo.ErrNotRegistered
}

func (f *fakeRepo) ListAttendedTypes(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var types []string
	for eventID, roster := range f.attendees {
		event := f.events[eventID]
		if event == nil || event.Status != model.StatusApproved {
			continue
		}
		for _, a := range roster {
			if a.UserID == userID && a.IsAttended && !seen[event.Type] {
				seen[event.Type] = true
				types = append(types, event.Type)
			}
		}
	}
	return types, nil
}

func (f *fakeRepo) ListRecommendedEvents(_ context.Context, userID string, types []string, from time.Time, limit int) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var out []model.Event
	for _, e := range f.events {
		if e.Status != model.StatusApproved || e.Date.Before(from) {
			continue
		}
		if len(types) > 0 && !typeSet[e.Type] {
			continue
		}
		joined := false
		for _, a := range f.attendees[e.ID] {
			if a.UserID == userID {
				joined = true
				break
			}
		}
		if joined {
			continue
		}
		out = append(out, *cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (f *fakeRepo) UpdateUserProfile(_ context.Context, id, name, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	if name != "" {
		u.Name = name
	}
	if email != "" {
		u.Email = email
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) SetProfileImage(_ context.Context, id, imageURL string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	u.ProfileImageURL = imageURL
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) ListUsers(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) UpdateUserRole(_ context.Context, id, role string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) SetResetToken(_ context.Context, userID, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repo.ErrUserNotFound
	}
	u.ResetPasswordToken = token
	u.ResetPasswordExpires = &expires
	return nil
}

func (f *fakeRepo) CreateFeedback(_ context.Context, fb *model.Feedback) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb.ID = int64(len(f.feedback) + 1)
	fb.CreatedAt = time.Now()
	if u, ok := f.users[fb.UserID]; ok {
		fb.UserName = u.Name
	}
	f.feedback = append(f.feedback, *fb)
	return fb.ID, nil
}

func (f *fakeRepo) GetFeedbackByEventID(_ context.Context, eventID string) ([]model.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Feedback
	for _, fb := range f.feedback {
		if fb.EventID == eventID {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountEvents(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events), nil
}

func (f *fakeRepo) CountUsers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeRepo) TotalRevenue(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for id, e := range f.events {
		if e.Status == model.StatusApproved {
			total += int64(len(f.attendees[id])) * int64(e.RegistrationFee)
		}
	}
	return total, nil
}

func (f *fakeRepo) Ping() error { return f.pingErr }

func (f *fakeRepo) MigrateUp(string) error   { return nil }
func (f *fakeRepo) MigrateDown(string) error { return nil }

// Fixture helpers. These go straight into the maps, bypassing CreateEvent,
// so tests control ids and statuses directly.

func (f *fakeRepo) addUser(id, name, email, role string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{ID: id, Name: name, Email: email, Role: role}
	f.users[id] = u
	return u
}

func (f *fakeRepo) addEvent(e model.Event) *model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.QRCodeID == "" {
		e.QRCodeID = uuid.NewString()
	}
	f.events[e.ID] = &e
	return &e
}

func (f *fakeRepo) addAttendee(eventID, userID string, attended bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAttendeeID++
	f.attendees[eventID] = append(f.attendees[eventID], &model.Attendee{
		ID:         f.nextAttendeeID,
		EventID:    eventID,
		UserID:     userID,
		IsAttended: attended,
		CreatedAt:  time.Now(),
	})
}

func (f *fakeRepo) roster(eventID string) []model.Attendee {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Attendee, 0, len(f.attendees[eventID]))
	for _, a := range f.attendees[eventID] {
		out = append(out, *a)
	}
	return out
}

type fakeQueue struct {
	mu        sync.Mutex
	err       error
	published [][]byte
}

func (q *fakeQueue) Publish(message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, message)
	return nil
}

func (q *fakeQueue) messages(t *testing.T) []dto.NotificationMessage {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]dto.NotificationMessage, 0, len(q.published))
	for _, raw := range q.published {
		var msg dto.NotificationMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	return out
}

type stubRenderer struct {
	mu  sync.Mutex
	err error
}

func (r *stubRenderer) Render(_, studentName, eventTitle string, _ time.Time) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 " + studentName + " / " + eventTitle), nil
}

func (r *stubRenderer) RenderDefault(studentName, eventTitle string) ([]byte, error) {
	return r.Render("", studentName, eventTitle, time.Time{})
}

var _ certgen.Renderer = (*stubRenderer)(nil)

type testApp struct {
	t        *testing.T
	app      *ginext.Engine
	repo     *fakeRepo
	queue    *fakeQueue
	storage  *uploads.Storage
	renderer *stubRenderer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	fr := newFakeRepo()
	queue := &fakeQueue{}
	renderer := &stubRenderer{}
	storage, err := uploads.New(t.TempDir())
	require.NoError(t, err)

	logger := zerolog.Nop()
	svc := service.NewService(fr, &logger, queue, storage, renderer, "http://campus.example")

	app := api.NewRouters(&api.Routers{
		Service:    svc,
		JWTSecret:  testSecret,
		UploadsDir: storage.Dir(),
	})

	return &testApp{t: t, app: app, repo: fr, queue: queue, storage: storage, renderer: renderer}
}

func signToken(t *testing.T, id, role, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"id":    id,
		"role":  role,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (ta *testApp) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ta.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ta.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ta.app.ServeHTTP(w, req)
	return w
}

func (ta *testApp) doForm(method, path, token string, form url.Values) *httptest.ResponseRecorder {
	ta.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ta.app.ServeHTTP(w, req)
	return w
}

func (ta *testApp) doMultipart(path, token string, fields map[string]string, fileField, filename, contentType string, fileData []byte) *httptest.ResponseRecorder {
	ta.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(ta.t, mw.WriteField(k, v))
	}
	if fileField != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(ta.t, err)
		_, err = part.Write(fileData)
		require.NoError(ta.t, err)
	}
	require.NoError(ta.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ta.app.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error, "expected error envelope, body: %s", w.Body.String())
	return env.Error.Code
}

// futureEvent builds an approved event starting comfortably in the future.
func futureEvent(createdBy string) model.Event {
	return model.Event{
		Title:             "Robotics Workshop",
		Description:       "Hands-on robotics",
		Type:              "Tech",
		Date:              time.Now().AddDate(0, 0, 7),
		Time:              "18:00",
		Venue:             "Main Hall",
		Status:            model.StatusApproved,
		CreatedBy:         createdBy,
		EventMode:         model.ModeOffline,
		RegistrationLimit: 0,
	}
}

// pastEvent builds an approved event whose start instant has passed.
func pastEvent(createdBy string) model.Event {
	e := futureEvent(createdBy)
	e.Date = time.Now().AddDate(0, 0, -7)
	return e
}
