package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/student-records-be/internal/models"
)

// Student change notifications sent through a Publisher.
const (
	EventStudentCreated = "student.created"
	EventStudentUpdated = "student.updated"
	EventStudentDeleted = "student.deleted"
)

// DefaultLowGradeThreshold is used by LowGrades when no threshold is given.
const DefaultLowGradeThreshold = 30.0

// Publisher receives student change notifications.
type Publisher interface {
	Publish(action string, payload interface{})
}

// StudentServiceProvider defines the interface for student persistence.
type StudentServiceProvider interface {
	CreateStudent(ctx context.Context, in models.StudentInput) (models.Student, error)
	GetStudentByID(ctx context.Context, id int64) (models.Student, error)
	UpdateStudent(ctx context.Context, id int64, patch models.StudentPatch) (models.Student, error)
	DeleteStudent(ctx context.Context, id int64) (bool, error)
	ListStudents(ctx context.Context, faculty string) ([]models.Student, error)
	UniqueCourses(ctx context.Context) ([]string, error)
	AverageGrade(ctx context.Context, faculty string) (float64, error)
	LowGrades(ctx context.Context, course string, threshold float64) ([]models.Student, error)
}

// StudentService provides CRUD and reporting queries for students.
type StudentService struct {
	db        *sql.DB
	publisher Publisher
}

// NewStudentService creates a new StudentService. publisher may be nil.
func NewStudentService(db *sql.DB, publisher Publisher) *StudentService {
	return &StudentService{db: db, publisher: publisher}
}

const studentColumns = "id, last_name, first_name, faculty, course, grade"

// CreateStudent validates and inserts a new student.
func (s *StudentService) CreateStudent(ctx context.Context, in models.StudentInput) (models.Student, error) {
	if err := in.Validate(); err != nil {
		return models.Student{}, err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO students (last_name, first_name, faculty, course, grade) VALUES (?, ?, ?, ?, ?)",
		in.LastName, in.FirstName, in.Faculty, in.Course, in.Grade)
	if err != nil {
		return models.Student{}, fmt.Errorf("failed to insert student: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Student{}, err
	}

	student := models.Student{
		ID:        id,
		LastName:  in.LastName,
		FirstName: in.FirstName,
		Faculty:   in.Faculty,
		Course:    in.Course,
		Grade:     in.Grade,
	}
	s.publish(EventStudentCreated, student)
	return student, nil
}

// GetStudentByID retrieves a single student by ID.
func (s *StudentService) GetStudentByID(ctx context.Context, id int64) (models.Student, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	return scanStudent(row)
}

// UpdateStudent applies the fields present in patch and returns the result.
func (s *StudentService) UpdateStudent(ctx context.Context, id int64, patch models.StudentPatch) (models.Student, error) {
	if err := patch.Validate(); err != nil {
		return models.Student{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Student{}, err
	}
	defer tx.Rollback()

	student, err := scanStudent(tx.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id))
	if err != nil {
		return models.Student{}, err
	}
	if patch.IsEmpty() {
		return student, nil
	}
	patch.Apply(&student)

	_, err = tx.ExecContext(ctx,
		"UPDATE students SET last_name = ?, first_name = ?, faculty = ?, course = ?, grade = ? WHERE id = ?",
		student.LastName, student.FirstName, student.Faculty, student.Course, student.Grade, id)
	if err != nil {
		return models.Student{}, fmt.Errorf("failed to update student %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return models.Student{}, err
	}

	s.publish(EventStudentUpdated, student)
	return student, nil
}

// DeleteStudent removes a student. It reports false when no row existed.
func (s *StudentService) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete student %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.publish(EventStudentDeleted, map[string]int64{"id": id})
	return true, nil
}

// ListStudents returns all students, or only those of faculty when it is non-empty.
func (s *StudentService) ListStudents(ctx context.Context, faculty string) ([]models.Student, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if faculty == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY id")
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students WHERE faculty = ? ORDER BY id", faculty)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

// UniqueCourses returns every distinct course value, sorted.
func (s *StudentService) UniqueCourses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT course FROM students ORDER BY course")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := []string{}
	for rows.Next() {
		var course string
		if err := rows.Scan(&course); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// AverageGrade returns the mean grade of a faculty. A faculty without
// students yields ErrStudentNotFound.
func (s *StudentService) AverageGrade(ctx context.Context, faculty string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT AVG(grade) FROM students WHERE faculty = ?", faculty).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, fmt.Errorf("faculty %q: %w", faculty, ErrStudentNotFound)
	}
	return avg.Float64, nil
}

// LowGrades returns the students of course whose grade is below threshold.
func (s *StudentService) LowGrades(ctx context.Context, course string, threshold float64) ([]models.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE course = ? AND grade < ? ORDER BY grade, id",
		course, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

func (s *StudentService) publish(action string, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(action, payload)
	}
}

// scanStudents is a helper function to scan multiple rows into a slice of Students.
func scanStudents(rows *sql.Rows) ([]models.Student, error) {
	students := []models.Student{}
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	return students, rows.Err()
}

// scanStudent is a helper function to scan a single row into a Student struct.
func scanStudent(scanner interface{ Scan(...interface{}) error }) (models.Student, error) {
	var student models.Student
	err := scanner.Scan(
		&student.ID,
		&student.LastName,
		&student.FirstName,
		&student.Faculty,
		&student.Course,
		&student.Grade,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Student{}, ErrStudentNotFound
		}
		return models.Student{}, err
	}
	return student, nil
}
