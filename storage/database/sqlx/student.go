package sqlxrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type (
	studentRow struct {
		ID            string    `db:"id"`
		Name          string    `db:"name"`
		AdmissionNo   string    `db:"admission_no"`
		Class         string    `db:"class"`
		GuardianPhone string    `db:"guardian_phone"`
		Email         string    `db:"email"`
		IsActive      bool      `db:"is_active"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	studentRepository struct {
		exec core.DBExecutor
	}
)

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{exec: exec}
}

func (repo studentRepository) studentRow(std student.Student) studentRow {
	return studentRow{
		ID:            std.ID,
		Name:          std.Name,
		AdmissionNo:   std.AdmissionNo,
		Class:         std.Class,
		GuardianPhone: std.GuardianPhone,
		Email:         std.Email,
		IsActive:      std.IsActive,
		CreatedAt:     std.CreatedAt.UTC(),
		UpdatedAt:     std.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) student(row studentRow) student.Student {
	return student.Student{
		ID:            row.ID,
		Name:          row.Name,
		AdmissionNo:   row.AdmissionNo,
		Class:         row.Class,
		GuardianPhone: row.GuardianPhone,
		Email:         row.Email,
		IsActive:      row.IsActive,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func (repo studentRepository) CheckAdmissionNoUniqueness(ctx context.Context, admissionNo string, excluded ...student.Student) error {
	ds := dialect.From("student").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("admission_no").Eq(admissionNo))
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, std := range excluded {
			ids = append(ids, std.ID)
		}
		ds = ds.Where(goqu.C("id").NotIn(ids))
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return errors.Wrap(err, "building admission number check")
	}
	var count int
	if err = repo.exec.GetContext(ctx, &count, q, args...); err != nil {
		return errors.Wrap(err, "checking admission number uniqueness")
	}
	if count > 0 {
		return student.ErrAdmissionNoExists
	}
	return nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	q, args, err := dialect.Insert("student").Prepared(true).Rows(repo.studentRow(std)).ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building student insert")
	}
	if _, err = repo.exec.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, student.ErrAdmissionNoExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	q, args, err := dialect.From("student").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building student query")
	}
	var row studentRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return repo.student(row), nil
}

func (repo studentRepository) FilterStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	ds := dialect.From("student").Prepared(true)
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			ds = ds.Where(goqu.Or(
				goqu.C("name").ILike(pat),
				goqu.C("admission_no").ILike(pat),
				goqu.C("email").ILike(pat),
			))
		}
		if filter.Class != "" {
			ds = ds.Where(goqu.C("class").Eq(filter.Class))
		}
		if filter.IsActive != nil {
			ds = ds.Where(goqu.C("is_active").Eq(*filter.IsActive))
		}
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("name").Asc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building students query")
	}
	var rows []studentRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.student(row))
	}
	return students, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, std student.Student, isActive *bool) (student.Student, error) {
	row := repo.studentRow(std)
	if isActive != nil {
		row.IsActive = *isActive
	}
	q, args, err := dialect.Update("student").Prepared(true).
		Set(row).
		Where(goqu.C("id").Eq(std.ID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building student update")
	}
	var updated studentRow
	if err = repo.exec.GetContext(ctx, &updated, q, args...); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return repo.student(updated), nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string) error {
	q, args, err := dialect.Delete("student").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building student delete")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ErrNotFound
	}
	return nil
}
