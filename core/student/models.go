package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AdmissionNo   string    `json:"admission_no"`
	Class         string    `json:"class"`
	GuardianPhone string    `json:"guardian_phone"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to enrol a new Student.
type NewStudent struct {
	Name          string `json:"name" validate:"required"`
	AdmissionNo   string `json:"admission_no" validate:"required,alphanum_"`
	Class         string `json:"class"`
	GuardianPhone string `json:"guardian_phone" validate:"omitempty,phone_"`
	Email         string `json:"email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.AdmissionNo = core.CleanString(ns.AdmissionNo, true /* lower */)
	ns.Class = core.CleanString(ns.Class)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	Name          string `json:"name"`
	AdmissionNo   string `json:"admission_no" validate:"omitempty,alphanum_"`
	Class         string `json:"class"`
	GuardianPhone string `json:"guardian_phone" validate:"omitempty,phone_"`
	Email         string `json:"email" validate:"omitempty,email"`
	IsActive      *bool  `json:"is_active"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.AdmissionNo = core.CleanString(us.AdmissionNo, true /* lower */)
	us.Class = core.CleanString(us.Class)
	us.GuardianPhone = core.CleanString(us.GuardianPhone)
	us.Email = core.CleanString(us.Email, true /* lower */)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search   string `query:"search"` // matches Name, AdmissionNo or Email
	Class    string `query:"class"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Class == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Class = core.CleanString(qf.Class)
}
