package announce

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Audience scopes who an announcement is addressed to.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceStudents Audience = "students"
	AudienceTeachers Audience = "teachers"
)

type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Audience  Audience  `json:"audience"`
	CreatedBy string    `json:"created_by"` // user ID
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewAnnouncement contains information needed to publish an announcement.
type NewAnnouncement struct {
	Title    string   `json:"title" validate:"required"`
	Body     string   `json:"body" validate:"required"`
	Audience Audience `json:"audience" validate:"omitempty,oneof=all students teachers"`
	Notify   bool     `json:"notify"` // also email the audience
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
	if na.Audience == "" {
		na.Audience = AudienceAll
	}
	return validate.Struct(na)
}

type QueryFilter struct {
	Audience Audience `query:"audience"`
}
