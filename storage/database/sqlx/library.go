package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/library"
)

type (
	bookRow struct {
		ID        string    `db:"id"`
		Title     string    `db:"title"`
		Author    string    `db:"author"`
		ISBN      string    `db:"isbn"`
		Category  string    `db:"category"`
		Publisher string    `db:"publisher"`
		Year      int       `db:"year"`
		Quantity  int       `db:"quantity"`
		Available int       `db:"available"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	borrowRow struct {
		ID         string    `db:"id"`
		BookID     string    `db:"book_id"`
		StudentID  string    `db:"student_id"`
		BorrowDate time.Time `db:"borrow_date"`
		DueDate    time.Time `db:"due_date"`
		ReturnDate null.Time `db:"return_date"`
		Status     string    `db:"status"`
		Fine       int       `db:"fine"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	libraryRepository struct {
		exec core.DBExecutor
	}
)

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(exec core.DBExecutor) *libraryRepository {
	return &libraryRepository{exec: exec}
}

func (repo libraryRepository) bookRow(book library.Book) bookRow {
	return bookRow{
		ID:        book.ID,
		Title:     book.Title,
		Author:    book.Author,
		ISBN:      book.ISBN,
		Category:  book.Category,
		Publisher: book.Publisher,
		Year:      book.Year,
		Quantity:  book.Quantity,
		Available: book.Available,
		CreatedAt: book.CreatedAt.UTC(),
		UpdatedAt: book.UpdatedAt.UTC(),
	}
}

func (repo libraryRepository) book(row bookRow) library.Book {
	return library.Book{
		ID:        row.ID,
		Title:     row.Title,
		Author:    row.Author,
		ISBN:      row.ISBN,
		Category:  row.Category,
		Publisher: row.Publisher,
		Year:      row.Year,
		Quantity:  row.Quantity,
		Available: row.Available,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo libraryRepository) borrowRow(rec library.BorrowRecord) borrowRow {
	return borrowRow{
		ID:         rec.ID,
		BookID:     rec.BookID,
		StudentID:  rec.StudentID,
		BorrowDate: rec.BorrowDate.UTC(),
		DueDate:    rec.DueDate.UTC(),
		ReturnDate: rec.ReturnDate,
		Status:     string(rec.Status),
		Fine:       rec.Fine,
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
}

func (repo libraryRepository) borrow(row borrowRow) library.BorrowRecord {
	return library.BorrowRecord{
		ID:         row.ID,
		BookID:     row.BookID,
		StudentID:  row.StudentID,
		BorrowDate: row.BorrowDate,
		DueDate:    row.DueDate,
		ReturnDate: row.ReturnDate,
		Status:     library.BorrowStatus(row.Status),
		Fine:       row.Fine,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" to the given domain error.
func trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err is a psql unique constraint violation.
func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// Books

func (repo libraryRepository) CreateBook(ctx context.Context, book library.Book, exec ...core.DBExecutor) (library.Book, error) {
	q, args, err := dialect.Insert("book").Prepared(true).Rows(repo.bookRow(book)).ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building book insert")
	}
	if _, err = getExec(repo.exec, exec).ExecContext(ctx, q, args...); err != nil {
		return library.Book{}, errors.Wrap(err, "inserting book")
	}
	return book, nil
}

func (repo libraryRepository) GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Book, error) {
	q, args, err := dialect.From("book").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building book query")
	}
	var row bookRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return library.Book{}, trapNoRowsErr(err, library.ErrBookNotFound, "getting book")
	}
	return repo.book(row), nil
}

func (repo libraryRepository) QueryBooks(ctx context.Context, filter *library.BookQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]library.Book, error) {
	ds := dialect.From("book").Prepared(true)
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			ds = ds.Where(goqu.Or(
				goqu.C("title").ILike(pat),
				goqu.C("author").ILike(pat),
				goqu.C("isbn").ILike(pat),
			))
		}
		if filter.Category != "" {
			ds = ds.Where(goqu.C("category").Eq(filter.Category))
		}
		if filter.Publisher != "" {
			ds = ds.Where(goqu.C("publisher").Eq(filter.Publisher))
		}
		if filter.YearFrom != 0 {
			ds = ds.Where(goqu.C("year").Gte(filter.YearFrom))
		}
		if filter.YearTo != 0 {
			ds = ds.Where(goqu.C("year").Lte(filter.YearTo))
		}
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("title").Asc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building books query")
	}
	var rows []bookRow
	if err = getExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	books := make([]library.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, repo.book(row))
	}
	return books, nil
}

func (repo libraryRepository) UpdateBook(ctx context.Context, book library.Book, available *int, exec ...core.DBExecutor) (library.Book, error) {
	rec := goqu.Record{
		"title":      book.Title,
		"author":     book.Author,
		"isbn":       book.ISBN,
		"category":   book.Category,
		"publisher":  book.Publisher,
		"year":       book.Year,
		"quantity":   book.Quantity,
		"updated_at": book.UpdatedAt.UTC(),
	}
	if available != nil {
		rec["available"] = *available
	}
	q, args, err := dialect.Update("book").Prepared(true).
		Set(rec).
		Where(goqu.C("id").Eq(book.ID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building book update")
	}
	var row bookRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return library.Book{}, trapNoRowsErr(err, library.ErrBookNotFound, "updating book")
	}
	return repo.book(row), nil
}

func (repo libraryRepository) DeleteBook(ctx context.Context, id string, exec ...core.DBExecutor) error {
	x := getExec(repo.exec, exec)

	// purge returned borrow history first; the service refuses deletion
	// while active records exist
	q, args, err := dialect.Delete("borrow_record").Prepared(true).Where(goqu.C("book_id").Eq(id)).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building borrow history delete")
	}
	if _, err = x.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "deleting borrow history")
	}

	if q, args, err = dialect.Delete("book").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL(); err != nil {
		return errors.Wrap(err, "building book delete")
	}
	res, err := x.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.ErrBookNotFound
	}
	return nil
}

func (repo libraryRepository) AdjustBookAvailable(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (library.Book, error) {
	// relative adjustment guarded by the 0 <= available <= quantity
	// invariant; no read-then-write so concurrent borrows cannot lose updates
	q, args, err := dialect.Update("book").Prepared(true).
		Set(goqu.Record{"available": goqu.L("available + ?", delta)}).
		Where(
			goqu.C("id").Eq(bookID),
			goqu.L("available + ? BETWEEN 0 AND quantity", delta),
		).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building book adjustment")
	}
	var row bookRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			// absent book and rejected guard both land here; look the book up
			if _, gErr := repo.GetBookByID(ctx, bookID, exec...); gErr != nil {
				return library.Book{}, gErr
			}
			return library.Book{}, library.ErrBookUnavailable
		}
		return library.Book{}, errors.Wrap(err, "adjusting book availability")
	}
	return repo.book(row), nil
}

// Borrow records

func (repo libraryRepository) CreateBorrow(ctx context.Context, rec library.BorrowRecord, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	q, args, err := dialect.Insert("borrow_record").Prepared(true).Rows(repo.borrowRow(rec)).ToSQL()
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "building borrow insert")
	}
	if _, err = getExec(repo.exec, exec).ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return library.BorrowRecord{}, library.ErrDuplicateBorrow
		}
		return library.BorrowRecord{}, errors.Wrap(err, "inserting borrow record")
	}
	return rec, nil
}

func (repo libraryRepository) GetBorrowByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	q, args, err := dialect.From("borrow_record").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "building borrow query")
	}
	var row borrowRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return library.BorrowRecord{}, trapNoRowsErr(err, library.ErrRecordNotFound, "getting borrow record")
	}
	return repo.borrow(row), nil
}

func (repo libraryRepository) GetActiveBorrow(ctx context.Context, bookID, studentID string, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	q, args, err := dialect.From("borrow_record").Prepared(true).
		Where(
			goqu.C("book_id").Eq(bookID),
			goqu.C("student_id").Eq(studentID),
			goqu.C("status").Neq(string(library.StatusReturned)),
		).
		ToSQL()
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "building active borrow query")
	}
	var row borrowRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return library.BorrowRecord{}, trapNoRowsErr(err, library.ErrRecordNotFound, "getting active borrow")
	}
	return repo.borrow(row), nil
}

func (repo libraryRepository) QueryBorrows(ctx context.Context, filter *library.BorrowQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]library.BorrowRecord, error) {
	ds := dialect.From("borrow_record").Prepared(true)
	if filter != nil && !filter.IsEmpty() {
		if filter.BookID != "" {
			ds = ds.Where(goqu.C("book_id").Eq(filter.BookID))
		}
		if filter.StudentID != "" {
			ds = ds.Where(goqu.C("student_id").Eq(filter.StudentID))
		}
		if filter.Status != "" {
			ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
		}
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("borrow_date").Desc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building borrows query")
	}
	var rows []borrowRow
	if err = getExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying borrow records")
	}
	recs := make([]library.BorrowRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, repo.borrow(row))
	}
	return recs, nil
}

func (repo libraryRepository) UpdateBorrow(ctx context.Context, rec library.BorrowRecord, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	q, args, err := dialect.Update("borrow_record").Prepared(true).
		Set(repo.borrowRow(rec)).
		Where(goqu.C("id").Eq(rec.ID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return library.BorrowRecord{}, errors.Wrap(err, "building borrow update")
	}
	var row borrowRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return library.BorrowRecord{}, trapNoRowsErr(err, library.ErrRecordNotFound, "updating borrow record")
	}
	return repo.borrow(row), nil
}

func (repo libraryRepository) QueryDueBorrows(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]library.BorrowRecord, error) {
	q, args, err := dialect.From("borrow_record").Prepared(true).
		Where(
			goqu.C("status").Eq(string(library.StatusBorrowed)),
			goqu.C("due_date").Lt(asOf.UTC()),
			goqu.C("return_date").IsNull(),
		).
		Order(goqu.C("due_date").Asc()).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building due borrows query")
	}
	var rows []borrowRow
	if err = getExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying due borrows")
	}
	recs := make([]library.BorrowRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, repo.borrow(row))
	}
	return recs, nil
}

func (repo libraryRepository) MarkBorrowsOverdue(ctx context.Context, now time.Time, ids []string, exec ...core.DBExecutor) error {
	q, args, err := dialect.Update("borrow_record").Prepared(true).
		Set(goqu.Record{"status": string(library.StatusOverdue), "updated_at": now.UTC()}).
		Where(
			goqu.C("id").In(ids),
			goqu.C("status").Eq(string(library.StatusBorrowed)),
		).
		ToSQL()
	if err != nil {
		return errors.Wrap(err, "building overdue update")
	}
	_, err = getExec(repo.exec, exec).ExecContext(ctx, q, args...)
	return errors.Wrap(err, "marking borrows overdue")
}

func (repo libraryRepository) countActiveBorrows(ctx context.Context, where goqu.Expression, exec []core.DBExecutor) (int, error) {
	q, args, err := dialect.From("borrow_record").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where, goqu.C("status").Neq(string(library.StatusReturned))).
		ToSQL()
	if err != nil {
		return 0, errors.Wrap(err, "building active borrows count")
	}
	var n int
	if err = getExec(repo.exec, exec).GetContext(ctx, &n, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting active borrows")
	}
	return n, nil
}

func (repo libraryRepository) CountActiveBorrowsByBook(ctx context.Context, bookID string, exec ...core.DBExecutor) (int, error) {
	return repo.countActiveBorrows(ctx, goqu.C("book_id").Eq(bookID), exec)
}

func (repo libraryRepository) CountActiveBorrowsByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	return repo.countActiveBorrows(ctx, goqu.C("student_id").Eq(studentID), exec)
}
