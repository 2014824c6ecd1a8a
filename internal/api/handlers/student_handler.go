package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/student-records-be/internal/importer"
	"github.com/isdelr/student-records-be/internal/jobs"
	"github.com/isdelr/student-records-be/internal/models"
	"github.com/isdelr/student-records-be/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	maxCSVBody     = 10 << 20
	maxBatchDelete = 10000
)

// JobSubmitter starts detached background jobs.
type JobSubmitter interface {
	Submit(name string, fn jobs.Func) string
}

// StudentHandler handles HTTP requests related to students.
type StudentHandler struct {
	service services.StudentServiceProvider
	jobs    JobSubmitter
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(service services.StudentServiceProvider, jobs JobSubmitter) *StudentHandler {
	return &StudentHandler{service: service, jobs: jobs}
}

// List handles GET /students, optionally filtered by ?faculty=.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context(), r.URL.Query().Get("faculty"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// Get handles the request to get a single student by ID.
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := studentID(w, r)
	if !ok {
		return
	}

	student, err := h.service.GetStudentByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// Create handles the request to create a new student.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload models.StudentPatch
	if !decodeJSON(w, r, &payload) {
		return
	}
	in, err := payload.ToInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	student, err := h.service.CreateStudent(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// Update handles a partial update of an existing student.
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := studentID(w, r)
	if !ok {
		return
	}
	var payload models.StudentPatch
	if !decodeJSON(w, r, &payload) {
		return
	}

	student, err := h.service.UpdateStudent(r.Context(), id, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// Delete handles the request to delete a student.
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := studentID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteStudent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, services.ErrStudentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Student was deleted."})
}

// Courses returns the distinct course values.
func (h *StudentHandler) Courses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.UniqueCourses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// AverageGrade returns the mean grade of ?faculty=.
func (h *StudentHandler) AverageGrade(w http.ResponseWriter, r *http.Request) {
	faculty := r.URL.Query().Get("faculty")
	if faculty == "" {
		writeMessage(w, http.StatusBadRequest, "faculty is required")
		return
	}

	avg, err := h.service.AverageGrade(r.Context(), faculty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"faculty": faculty, "average_grade": avg})
}

// LowGrades returns students of ?course= below ?threshold= (default 30).
func (h *StudentHandler) LowGrades(w http.ResponseWriter, r *http.Request) {
	course := r.URL.Query().Get("course")
	if course == "" {
		writeMessage(w, http.StatusBadRequest, "course is required")
		return
	}
	threshold := services.DefaultLowGradeThreshold
	if s := r.URL.Query().Get("threshold"); s != "" {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil || t < models.MinGrade || t > models.MaxGrade {
			writeMessage(w, http.StatusBadRequest, "threshold must be a number between 0 and 100")
			return
		}
		threshold = t
	}

	students, err := h.service.LowGrades(r.Context(), course, threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// Import parses a CSV request body and inserts its rows in the background.
func (h *StudentHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBody)
	rows, rowErrs, err := importer.Parse(r.Body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, re := range rowErrs {
		log.Warn().Err(re.Err).Int("line", re.Line).Msg("Skipping invalid csv row")
	}

	jobID := h.jobs.Submit("csv-import", jobs.InsertRows(h.service, rows))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  jobID,
		"rows":    len(rows),
		"skipped": len(rowErrs),
	})
}

// BatchDelete deletes the given ids in the background.
func (h *StudentHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []int64 `json:"ids"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if len(payload.IDs) == 0 || len(payload.IDs) > maxBatchDelete {
		writeMessage(w, http.StatusBadRequest, "ids must contain between 1 and 10000 entries")
		return
	}

	jobID := h.jobs.Submit("batch-delete", jobs.BatchDelete(h.service, payload.IDs))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID, "ids": len(payload.IDs)})
}

func studentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid student id")
		return 0, false
	}
	return id, true
}
