package student

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound          = core.NewNotFoundError("student not found")
	ErrAdmissionNoExists = core.NewConflictError("a student with this admission number already exists")
	ErrHasActiveBorrows  = core.NewConflictError("student still holds borrowed library books")
)

type (
	Repository interface {
		// CheckAdmissionNoUniqueness returns ErrAdmissionNoExists when
		// another student already carries the admission number.
		CheckAdmissionNoUniqueness(ctx context.Context, admissionNo string, excluded ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		// FilterStudents applies AND on available QueryFilter fields; Search
		// does a case-insensitive match on Name, AdmissionNo or Email.
		FilterStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student, isActive *bool) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
	}

	// BorrowChecker guards roster deletions against open library loans.
	BorrowChecker interface {
		HasActiveBorrows(ctx context.Context, studentID string) (bool, error)
	}

	Service struct {
		repo    Repository
		borrows BorrowChecker
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AttachBorrowChecker wires the lending engine in after construction;
// the two services reference each other.
func (svc *Service) AttachBorrowChecker(bc BorrowChecker) {
	svc.borrows = bc
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkUniqueness(ctx, ns.AdmissionNo); err != nil {
		return Student{}, err
	}
	now := NowFunc().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		ID:            uuid.New().String(),
		Name:          ns.Name,
		AdmissionNo:   ns.AdmissionNo,
		Class:         ns.Class,
		GuardianPhone: ns.GuardianPhone,
		Email:         ns.Email,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) checkUniqueness(ctx context.Context, admissionNo string, excluded ...Student) error {
	if err := svc.repo.CheckAdmissionNoUniqueness(ctx, admissionNo, excluded...); err != nil {
		if err == ErrAdmissionNoExists {
			return core.NewValidationError(err, core.FieldError{Field: "admission_no", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	return svc.repo.FilterStudents(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.AdmissionNo != "" && us.AdmissionNo != std.AdmissionNo {
		if err = svc.checkUniqueness(ctx, us.AdmissionNo, std); err != nil {
			return Student{}, err
		}
		std.AdmissionNo = us.AdmissionNo
	}
	if us.Name != "" {
		std.Name = us.Name
	}
	if us.Class != "" {
		std.Class = us.Class
	}
	if us.GuardianPhone != "" {
		std.GuardianPhone = us.GuardianPhone
	}
	if us.Email != "" {
		std.Email = us.Email
	}
	std.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateStudent(ctx, std, us.IsActive)
}

// Delete removes a student from the roster; refused while the student
// still holds library books.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if svc.borrows != nil {
		holds, err := svc.borrows.HasActiveBorrows(ctx, id)
		if err != nil {
			return err
		}
		if holds {
			return ErrHasActiveBorrows
		}
	}
	return svc.repo.DeleteStudent(ctx, id)
}
