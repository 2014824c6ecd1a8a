package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/isdelr/student-records-be/internal/auth"
	"github.com/isdelr/student-records-be/internal/cache"
	"github.com/isdelr/student-records-be/internal/database"
	"github.com/isdelr/student-records-be/internal/jobs"
	"github.com/isdelr/student-records-be/internal/models"
	"github.com/isdelr/student-records-be/internal/services"
	"github.com/isdelr/student-records-be/internal/websocket"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gotest.tools/v3/assert"
)

// inlineJobs runs submitted jobs before returning so tests can observe
// their effects.
type inlineJobs struct {
	t *testing.T
}

func (j inlineJobs) Submit(name string, fn jobs.Func) string {
	assert.NilError(j.t, fn(context.Background()))
	return "job-" + name
}

type testApp struct {
	handler http.Handler
	mr      *miniredis.Miniredis
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "students.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NilError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	tokens := auth.NewTokenService("test-secret", 30*time.Minute)
	authService := services.NewAuthService(services.NewUserService(db), tokens, bcrypt.MinCost)
	students := services.NewCachedStudentService(services.NewStudentService(db, hub), cache.NewRedisFromClient(client), time.Hour)

	return testApp{
		handler: NewRouter(Deps{
			DB:          db,
			Hub:         hub,
			Auth:        authService,
			Students:    students,
			Jobs:        inlineJobs{t: t},
			CORSOrigins: []string{"http://localhost:3000"},
		}),
		mr: mr,
	}
}

func (a testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		assert.NilError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a testApp) login(t *testing.T) string {
	t.Helper()
	creds := map[string]string{"username": "vasya", "password": "pupkin"}
	rec := a.do(t, http.MethodPost, "/api/v1/auth/register", "", creds)
	assert.Equal(t, rec.Code, http.StatusOK, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, rec.Code, http.StatusOK, rec.Body.String())
	var token services.AccessToken
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.Equal(t, token.TokenType, "bearer")
	return token.AccessToken
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func johnDoe() map[string]interface{} {
	return map[string]interface{}{
		"last_name":  "Doe",
		"first_name": "John",
		"faculty":    "Engineering",
		"course":     "3",
		"grade":      4.5,
	}
}

func TestRootAndHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.DeepEqual(t, decode[map[string]string](t, rec), map[string]string{"message": "Hello world!"})

	rec = app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rec := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "vasya", "password": "other"})
	assert.Equal(t, rec.Code, http.StatusBadRequest)
	assert.Equal(t, decode[map[string]string](t, rec)["error"], "Username already taken")

	for _, creds := range []map[string]string{
		{"username": "vasya", "password": "wrong"},
		{"username": "nobody", "password": "pupkin"},
	} {
		rec = app.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
		assert.Equal(t, rec.Code, http.StatusUnauthorized)
		assert.Equal(t, decode[map[string]string](t, rec)["error"], "Invalid credentials")
	}

	rec = app.do(t, http.MethodPost, "/api/v1/auth/register", "", "{not json")
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestMe(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	rec := app.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decode[map[string]interface{}](t, rec)["username"], "vasya")

	rec = app.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, rec.Code, http.StatusUnauthorized)
}

func TestStudentRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	for _, tc := range []struct {
		method, path, token string
	}{
		{http.MethodGet, "/api/v1/students/1", ""},
		{http.MethodGet, "/api/v1/students/", ""},
		{http.MethodPost, "/api/v1/students/", ""},
		{http.MethodDelete, "/api/v1/students/1", "garbage"},
	} {
		rec := app.do(t, tc.method, tc.path, tc.token, nil)
		assert.Equal(t, rec.Code, http.StatusUnauthorized, tc.method+" "+tc.path)
	}
}

func TestStudentLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	rec := app.do(t, http.MethodPost, "/api/v1/students/", token, johnDoe())
	assert.Equal(t, rec.Code, http.StatusOK, rec.Body.String())
	created := decode[models.Student](t, rec)
	assert.Assert(t, created.ID > 0)
	path := "/api/v1/students/" + strconv.FormatInt(created.ID, 10)

	rec = app.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.DeepEqual(t, decode[models.Student](t, rec), created)
	assert.Assert(t, app.mr.Exists(services.StudentCacheKey(created.ID)))

	rec = app.do(t, http.MethodPut, path, token, map[string]interface{}{"grade": 91})
	assert.Equal(t, rec.Code, http.StatusOK, rec.Body.String())
	updated := decode[models.Student](t, rec)
	want := created
	want.Grade = 91
	assert.DeepEqual(t, updated, want)
	assert.Assert(t, !app.mr.Exists(services.StudentCacheKey(created.ID)))

	rec = app.do(t, http.MethodGet, path, token, nil)
	assert.DeepEqual(t, decode[models.Student](t, rec), want)

	rec = app.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.DeepEqual(t, decode[map[string]string](t, rec), map[string]string{"message": "Student was deleted."})

	rec = app.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)
	assert.Equal(t, decode[map[string]string](t, rec)["error"], "Student not found")

	rec = app.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = app.do(t, http.MethodPut, path, token, map[string]interface{}{"grade": 50})
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestCreateStudentValidation(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	missingGrade := johnDoe()
	delete(missingGrade, "grade")
	tooHigh := johnDoe()
	tooHigh["grade"] = 150
	emptyName := johnDoe()
	emptyName["first_name"] = ""

	for name, body := range map[string]map[string]interface{}{
		"missing grade":  missingGrade,
		"grade too high": tooHigh,
		"empty name":     emptyName,
	} {
		rec := app.do(t, http.MethodPost, "/api/v1/students/", token, body)
		assert.Equal(t, rec.Code, http.StatusBadRequest, name)
	}

	rec := app.do(t, http.MethodGet, "/api/v1/students/abc", token, nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestReports(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	for _, s := range []struct {
		last, faculty, course string
		grade                 float64
	}{
		{"Ivanov", "Physics", "Mechanics", 20},
		{"Petrov", "Physics", "Optics", 80},
		{"Sidorov", "History", "Mechanics", 45},
	} {
		body := johnDoe()
		body["last_name"], body["faculty"], body["course"], body["grade"] = s.last, s.faculty, s.course, s.grade
		rec := app.do(t, http.MethodPost, "/api/v1/students/", token, body)
		assert.Equal(t, rec.Code, http.StatusOK)
	}

	rec := app.do(t, http.MethodGet, "/api/v1/students/?faculty=Physics", token, nil)
	assert.Equal(t, len(decode[[]models.Student](t, rec)), 2)

	rec = app.do(t, http.MethodGet, "/api/v1/students/courses", token, nil)
	assert.DeepEqual(t, decode[[]string](t, rec), []string{"Mechanics", "Optics"})

	rec = app.do(t, http.MethodGet, "/api/v1/students/stats/average?faculty=Physics", token, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decode[map[string]interface{}](t, rec)["average_grade"], 50.0)

	rec = app.do(t, http.MethodGet, "/api/v1/students/stats/average?faculty=Law", token, nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = app.do(t, http.MethodGet, "/api/v1/students/low-grades?course=Mechanics", token, nil)
	low := decode[[]models.Student](t, rec)
	assert.Equal(t, len(low), 1)
	assert.Equal(t, low[0].LastName, "Ivanov")

	rec = app.do(t, http.MethodGet, "/api/v1/students/low-grades?course=Mechanics&threshold=50", token, nil)
	assert.Equal(t, len(decode[[]models.Student](t, rec)), 2)

	rec = app.do(t, http.MethodGet, "/api/v1/students/low-grades?course=Mechanics&threshold=abc", token, nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestImportAndBatchDelete(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	csv := "Фамилия,Имя,Факультет,Курс,Оценка\n" +
		"Ivanov,Ivan,Physics,Mechanics,55\n" +
		"Petrov,Petr,Physics,Optics,not-a-number\n" +
		"Sidorov,Sid,History,Mechanics,\"72,5\"\n"
	rec := app.do(t, http.MethodPost, "/api/v1/students/import", token, csv)
	assert.Equal(t, rec.Code, http.StatusAccepted, rec.Body.String())
	accepted := decode[map[string]interface{}](t, rec)
	assert.Equal(t, accepted["job_id"], "job-csv-import")
	assert.Equal(t, accepted["rows"], 2.0)
	assert.Equal(t, accepted["skipped"], 1.0)

	rec = app.do(t, http.MethodGet, "/api/v1/students/", token, nil)
	imported := decode[[]models.Student](t, rec)
	assert.Equal(t, len(imported), 2)

	rec = app.do(t, http.MethodPost, "/api/v1/students/import", token, "name,age\nx,1\n")
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	ids := []int64{imported[0].ID, imported[1].ID, 9999}
	rec = app.do(t, http.MethodPost, "/api/v1/students/batch-delete", token, map[string][]int64{"ids": ids})
	assert.Equal(t, rec.Code, http.StatusAccepted)

	rec = app.do(t, http.MethodGet, "/api/v1/students/", token, nil)
	assert.Equal(t, len(decode[[]models.Student](t, rec)), 0)

	rec = app.do(t, http.MethodPost, "/api/v1/students/batch-delete", token, map[string][]int64{"ids": {}})
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestImportSkipsMalformedQuoting(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	csv := "last_name,first_name,faculty,course,grade\n" +
		"Do\"e,John,Engineering,3,4.5\n" +
		"Smith,Anna,Math,2,80\n"
	rec := app.do(t, http.MethodPost, "/api/v1/students/import", token, csv)
	assert.Equal(t, rec.Code, http.StatusAccepted, rec.Body.String())
	accepted := decode[map[string]interface{}](t, rec)
	assert.Equal(t, accepted["rows"], 1.0)
	assert.Equal(t, accepted["skipped"], 1.0)

	rec = app.do(t, http.MethodGet, "/api/v1/students/", token, nil)
	imported := decode[[]models.Student](t, rec)
	assert.Equal(t, len(imported), 1)
	assert.Equal(t, imported[0].LastName, "Smith")
}
