package library

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrBookNotFound    = core.NewNotFoundError("book not found")
	ErrRecordNotFound  = core.NewNotFoundError("borrow record not found")
	ErrBookUnavailable = core.NewConflictError("no copies of this book are available")
	ErrDuplicateBorrow = core.NewConflictError("student already holds this book")
	ErrAlreadyReturned = core.NewConflictError("this book has already been returned")
	ErrBookHasBorrows  = core.NewConflictError("book still has active borrow records")
	ErrStudentNotFound = core.NewNotFoundError("student not found")
)

type (
	Repository interface {
		CreateBook(ctx context.Context, book Book, exec ...core.DBExecutor) (Book, error)
		GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (Book, error)
		QueryBooks(ctx context.Context, filter *BookQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Book, error)
		// UpdateBook persists the book's catalog fields. Available is written
		// only when `available` is non-nil, so metadata edits cannot clobber a
		// counter adjusted concurrently by AdjustBookAvailable.
		UpdateBook(ctx context.Context, book Book, available *int, exec ...core.DBExecutor) (Book, error)
		DeleteBook(ctx context.Context, id string, exec ...core.DBExecutor) error
		// AdjustBookAvailable applies an atomic relative adjustment to
		// Book.Available, guarded so that 0 <= Available <= Quantity always
		// holds. It returns ErrBookUnavailable when the guard rejects the
		// adjustment and ErrBookNotFound when the book is absent.
		AdjustBookAvailable(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (Book, error)

		CreateBorrow(ctx context.Context, rec BorrowRecord, exec ...core.DBExecutor) (BorrowRecord, error)
		GetBorrowByID(ctx context.Context, id string, exec ...core.DBExecutor) (BorrowRecord, error)
		// GetActiveBorrow returns the BORROWED or OVERDUE record held by the
		// student for the book, or ErrRecordNotFound.
		GetActiveBorrow(ctx context.Context, bookID, studentID string, exec ...core.DBExecutor) (BorrowRecord, error)
		QueryBorrows(ctx context.Context, filter *BorrowQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]BorrowRecord, error)
		UpdateBorrow(ctx context.Context, rec BorrowRecord, exec ...core.DBExecutor) (BorrowRecord, error)
		// QueryDueBorrows returns BORROWED records whose due date has passed as of `asOf`.
		QueryDueBorrows(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]BorrowRecord, error)
		MarkBorrowsOverdue(ctx context.Context, now time.Time, ids []string, exec ...core.DBExecutor) error
		CountActiveBorrowsByBook(ctx context.Context, bookID string, exec ...core.DBExecutor) (int, error)
		CountActiveBorrowsByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error)
	}

	// StudentInfo is the slice of a student record the lending engine needs.
	StudentInfo struct {
		ID    string
		Name  string
		Email string
	}

	// StudentDirectory provides student lookups without coupling this
	// package to the student roster implementation.
	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (StudentInfo, error)
	}

	Service struct {
		db       core.DB // nil in tests; in-memory repositories apply writes atomically
		repo     Repository
		students StudentDirectory
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

func NewService(db core.DB, repo Repository, students StudentDirectory, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, students: students, mailSvc: mailSvc, conf: conf}
}

func NewServiceMock(repo Repository, students StudentDirectory, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, students: students, mailSvc: mailSvc, conf: conf}
}

// transact runs fn within a single DB transaction so paired writes land
// together or not at all.
func (svc *Service) transact(ctx context.Context, fn func(exec ...core.DBExecutor) error) error {
	if svc.db == nil {
		return fn()
	}
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(rbErr, "rolling back transaction")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Books

func (svc *Service) CreateBook(ctx context.Context, nb NewBook) (Book, error) {
	now := NowFunc().UTC()
	book := Book{
		ID:        uuid.New().String(),
		Title:     nb.Title,
		Author:    nb.Author,
		ISBN:      nb.ISBN,
		Category:  nb.Category,
		Publisher: nb.Publisher,
		Year:      nb.Year,
		Quantity:  nb.Quantity,
		Available: nb.Quantity, // all copies start on the shelf
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateBook(ctx, book)
}

func (svc *Service) GetBook(ctx context.Context, id string) (Book, error) {
	return svc.repo.GetBookByID(ctx, id)
}

func (svc *Service) QueryBooks(ctx context.Context, filter *BookQueryFilter, ordering ...core.DBOrdering) ([]Book, error) {
	return svc.repo.QueryBooks(ctx, filter, ordering)
}

// UpdateBook modifies a book's catalog metadata. When Quantity changes,
// Available is re-derived from the number of copies currently out.
func (svc *Service) UpdateBook(ctx context.Context, id string, ub UpdateBook) (Book, error) {
	var updated Book
	err := svc.transact(ctx, func(exec ...core.DBExecutor) error {
		book, err := svc.repo.GetBookByID(ctx, id, exec...)
		if err != nil {
			return err
		}

		if ub.Title != "" {
			book.Title = ub.Title
		}
		if ub.Author != "" {
			book.Author = ub.Author
		}
		if ub.ISBN != "" {
			book.ISBN = ub.ISBN
		}
		if ub.Category != "" {
			book.Category = ub.Category
		}
		if ub.Publisher != "" {
			book.Publisher = ub.Publisher
		}
		if ub.Year != 0 {
			book.Year = ub.Year
		}
		var avail *int
		if ub.Quantity != nil && *ub.Quantity != book.Quantity {
			out, err := svc.repo.CountActiveBorrowsByBook(ctx, id, exec...)
			if err != nil {
				return err
			}
			book.Quantity = *ub.Quantity
			book.Available = book.Quantity - out
			if book.Available < 0 {
				book.Available = 0
			}
			avail = &book.Available
		}
		book.UpdatedAt = NowFunc().UTC()

		updated, err = svc.repo.UpdateBook(ctx, book, avail, exec...)
		return err
	})
	return updated, err
}

func (svc *Service) DeleteBook(ctx context.Context, id string) error {
	out, err := svc.repo.CountActiveBorrowsByBook(ctx, id)
	if err != nil {
		return err
	}
	if out > 0 {
		return ErrBookHasBorrows
	}
	return svc.repo.DeleteBook(ctx, id)
}

// Lending

// Borrow lends a copy of a book to a student. The availability decrement
// and record creation happen in one transaction; the duplicate-active
// check is folded into the same transaction to close the race window
// between check and create.
func (svc *Service) Borrow(ctx context.Context, nb NewBorrow) (BorrowRecord, error) {
	now := NowFunc().UTC()

	due := nb.DueDate
	if due.IsZero() {
		due = now.Add(svc.conf.Library.LoanPeriod)
	}
	due = due.UTC()
	if !due.After(now) {
		return BorrowRecord{}, core.NewValidationError(nil, core.FieldError{Field: "due_date", Error: "due date must be in the future"})
	}

	if _, err := svc.students.GetStudent(ctx, nb.StudentID); err != nil {
		return BorrowRecord{}, err
	}

	var rec BorrowRecord
	err := svc.transact(ctx, func(exec ...core.DBExecutor) error {
		if _, err := svc.repo.GetActiveBorrow(ctx, nb.BookID, nb.StudentID, exec...); err == nil {
			return ErrDuplicateBorrow
		} else if !core.ErrorIsKind(err, core.KindNotFound) {
			return err
		}

		if _, err := svc.repo.AdjustBookAvailable(ctx, nb.BookID, -1, exec...); err != nil {
			return err
		}

		var err error
		rec, err = svc.repo.CreateBorrow(ctx, BorrowRecord{
			ID:         uuid.New().String(),
			BookID:     nb.BookID,
			StudentID:  nb.StudentID,
			BorrowDate: now,
			DueDate:    due,
			Status:     StatusBorrowed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, exec...)
		return err
	})
	return rec, err
}

// daysLate returns the number of chargeable late days: any started day
// past the due date counts as a full day.
func daysLate(now, due time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}

// Return closes a borrow record and puts the copy back on the shelf,
// charging a fine when past due. The record update and availability
// increment happen in one transaction.
func (svc *Service) Return(ctx context.Context, recordID string) (BorrowRecord, string, error) {
	now := NowFunc().UTC()

	var (
		rec  BorrowRecord
		late int
	)
	err := svc.transact(ctx, func(exec ...core.DBExecutor) error {
		var err error
		if rec, err = svc.repo.GetBorrowByID(ctx, recordID, exec...); err != nil {
			return err
		}
		if rec.Status == StatusReturned {
			return ErrAlreadyReturned
		}

		late = daysLate(now, rec.DueDate)
		rec.ReturnDate = null.TimeFrom(now)
		rec.Status = StatusReturned
		rec.Fine = late * svc.conf.Library.DailyFineRate
		rec.UpdatedAt = now
		if rec, err = svc.repo.UpdateBorrow(ctx, rec, exec...); err != nil {
			return err
		}

		if _, err = svc.repo.AdjustBookAvailable(ctx, rec.BookID, 1, exec...); err != nil {
			// quantity may have been lowered by an admin while the copy was
			// out; the shelf is already full and there is nothing to add back
			if errors.Cause(err) == ErrBookUnavailable {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return BorrowRecord{}, "", err
	}

	msg := "book returned on time"
	if rec.Fine > 0 {
		msg = fmt.Sprintf("book returned %d day(s) late; fine: %d", late, rec.Fine)
	}
	return rec, msg, nil
}

// ReconcileOverdue flips every BORROWED record whose due date has passed
// to OVERDUE and notifies the students. It is idempotent: records already
// OVERDUE are left alone.
func (svc *Service) ReconcileOverdue(ctx context.Context, now time.Time) ([]BorrowRecord, error) {
	due, err := svc.repo.QueryDueBorrows(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "querying due borrows")
	}
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(due))
	for _, rec := range due {
		ids = append(ids, rec.ID)
	}
	if err = svc.repo.MarkBorrowsOverdue(ctx, now, ids); err != nil {
		return nil, errors.Wrap(err, "marking borrows overdue")
	}

	for i := range due {
		due[i].Status = StatusOverdue
		due[i].UpdatedAt = now
		svc.sendOverdueNotice(ctx, due[i])
	}
	return due, nil
}

func (svc *Service) sendOverdueNotice(ctx context.Context, rec BorrowRecord) {
	if svc.mailSvc == nil {
		return
	}
	std, err := svc.students.GetStudent(ctx, rec.StudentID)
	if err != nil || std.Email == "" {
		return
	}
	book, err := svc.repo.GetBookByID(ctx, rec.BookID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: std.Name, Address: std.Email}},
		Subject: "Overdue library book",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\n%q by %s was due back on %s. Please return it to the library; "+
				"a fine of %d per day applies until it is returned.",
			std.Name, book.Title, book.Author, rec.DueDate.Format("02 Jan 2006"), svc.conf.Library.DailyFineRate,
		),
	})
}

// QueryBorrows lists borrow records, flipping past-due records to OVERDUE
// first so listings never show a stale status.
func (svc *Service) QueryBorrows(ctx context.Context, filter *BorrowQueryFilter, ordering ...core.DBOrdering) ([]BorrowRecord, error) {
	if _, err := svc.ReconcileOverdue(ctx, NowFunc().UTC()); err != nil {
		return nil, err
	}
	return svc.repo.QueryBorrows(ctx, filter, ordering)
}

func (svc *Service) GetBorrow(ctx context.Context, id string) (BorrowRecord, error) {
	return svc.repo.GetBorrowByID(ctx, id)
}

// HasActiveBorrows reports whether the student currently holds any book.
func (svc *Service) HasActiveBorrows(ctx context.Context, studentID string) (bool, error) {
	n, err := svc.repo.CountActiveBorrowsByStudent(ctx, studentID)
	return n > 0, err
}
