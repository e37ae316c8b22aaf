package library

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// BorrowStatus is the lifecycle state of a BorrowRecord.
//
// BORROWED -> (due date passes) -> OVERDUE -> (return) -> RETURNED
// BORROWED -> (return before due) -> RETURNED
// RETURNED is terminal.
type BorrowStatus string

const (
	StatusBorrowed BorrowStatus = "BORROWED"
	StatusOverdue  BorrowStatus = "OVERDUE"
	StatusReturned BorrowStatus = "RETURNED"
)

type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn"`
	Category  string    `json:"category"`
	Publisher string    `json:"publisher"`
	Year      int       `json:"year"`
	Quantity  int       `json:"quantity"`  // total copies owned
	Available int       `json:"available"` // copies currently on shelf; 0 <= Available <= Quantity
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type BorrowRecord struct {
	ID         string       `json:"id"`
	BookID     string       `json:"book_id"`
	StudentID  string       `json:"student_id"`
	BorrowDate time.Time    `json:"borrow_date"` // UTC
	DueDate    time.Time    `json:"due_date"`    // UTC
	ReturnDate null.Time    `json:"return_date"` // UTC; unset while active
	Status     BorrowStatus `json:"status"`
	Fine       int          `json:"fine"`
	CreatedAt  time.Time    `json:"created_at"` // UTC
	UpdatedAt  time.Time    `json:"updated_at"` // UTC
}

// IsActive reports whether the record still holds a copy of the book.
func (r *BorrowRecord) IsActive() bool { return r.Status != StatusReturned }

// NewBook contains information needed to register a new Book.
type NewBook struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author" validate:"required"`
	ISBN      string `json:"isbn" validate:"omitempty,isbn"`
	Category  string `json:"category"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year" validate:"omitempty,gte=1000,lte=2100"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

func (nb *NewBook) Validate(validate *validator.Validate) error {
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.ISBN = core.CleanString(nb.ISBN)
	nb.Category = core.CleanString(nb.Category)
	nb.Publisher = core.CleanString(nb.Publisher)
	return validate.Struct(nb)
}

// UpdateBook defines what information may be provided to modify an existing Book.
// Available is never set directly: it is re-derived when Quantity changes.
type UpdateBook struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn" validate:"omitempty,isbn"`
	Category  string `json:"category"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year" validate:"omitempty,gte=1000,lte=2100"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gte=1"`
}

func (ub *UpdateBook) Validate(validate *validator.Validate) error {
	ub.Title = core.CleanString(ub.Title)
	ub.Author = core.CleanString(ub.Author)
	ub.ISBN = core.CleanString(ub.ISBN)
	ub.Category = core.CleanString(ub.Category)
	ub.Publisher = core.CleanString(ub.Publisher)
	return validate.Struct(ub)
}

// NewBorrow contains information needed to lend a Book to a Student.
type NewBorrow struct {
	BookID    string    `json:"book_id" validate:"required"`
	StudentID string    `json:"student_id" validate:"required"`
	DueDate   time.Time `json:"due_date"` // defaults to now + Config.Library.LoanPeriod
}

func (nb *NewBorrow) Validate(validate *validator.Validate) error {
	nb.BookID = core.CleanString(nb.BookID)
	nb.StudentID = core.CleanString(nb.StudentID)
	return validate.Struct(nb)
}

type BookQueryFilter struct {
	Search    string `query:"search"` // matches Title, Author or ISBN
	Category  string `query:"category"`
	Publisher string `query:"publisher"`
	YearFrom  int    `query:"year_from"`
	YearTo    int    `query:"year_to"`
}

func (qf *BookQueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Category == "" && qf.Publisher == "" && qf.YearFrom == 0 && qf.YearTo == 0
}

func (qf *BookQueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
	qf.Publisher = core.CleanString(qf.Publisher)
}

type BorrowQueryFilter struct {
	BookID    string       `query:"book"`
	StudentID string       `query:"student"`
	Status    BorrowStatus `query:"status"`
}

func (qf *BorrowQueryFilter) IsEmpty() bool {
	return qf.BookID == "" && qf.StudentID == "" && qf.Status == ""
}
