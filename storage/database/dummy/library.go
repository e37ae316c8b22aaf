package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/library"
)

type libraryRepository struct {
	db *libraryTables
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) library.Repository {
	return &libraryRepository{db: db.library}
}

func (repo *libraryRepository) queryBooks() []library.Book {
	books := make([]library.Book, 0, len(repo.db.books))
	for _, book := range repo.db.books {
		books = append(books, *book)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books
}

func (repo *libraryRepository) queryBorrows() []library.BorrowRecord {
	recs := make([]library.BorrowRecord, 0, len(repo.db.borrows))
	for _, rec := range repo.db.borrows {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].BorrowDate.After(recs[j].BorrowDate) })
	return recs
}

// Books

func (repo *libraryRepository) CreateBook(ctx context.Context, book library.Book, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.books[book.ID] = &book
	return book, nil
}

func (repo *libraryRepository) GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.getBook(id)
}

func (repo *libraryRepository) getBook(id string) (library.Book, error) {
	if book, ok := repo.db.books[id]; ok {
		return *book, nil
	}
	return library.Book{}, library.ErrBookNotFound
}

func (repo *libraryRepository) QueryBooks(ctx context.Context, filter *library.BookQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	books := repo.queryBooks()
	if filter == nil || filter.IsEmpty() {
		return books, nil
	}

	if filter.Search != "" {
		var filtered []library.Book
		search := strings.ToLower(filter.Search)
		for _, book := range books {
			if strings.Contains(strings.ToLower(book.Title), search) ||
				strings.Contains(strings.ToLower(book.Author), search) ||
				strings.Contains(strings.ToLower(book.ISBN), search) {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}
	if books != nil && filter.Category != "" {
		var filtered []library.Book
		for _, book := range books {
			if book.Category == filter.Category {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}
	if books != nil && filter.Publisher != "" {
		var filtered []library.Book
		for _, book := range books {
			if book.Publisher == filter.Publisher {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}
	if books != nil && filter.YearFrom != 0 {
		var filtered []library.Book
		for _, book := range books {
			if book.Year >= filter.YearFrom {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}
	if books != nil && filter.YearTo != 0 {
		var filtered []library.Book
		for _, book := range books {
			if book.Year <= filter.YearTo {
				filtered = append(filtered, book)
			}
		}
		books = filtered
	}

	return books, nil
}

func (repo *libraryRepository) UpdateBook(ctx context.Context, book library.Book, available *int, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cur, ok := repo.db.books[book.ID]
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	if available != nil {
		book.Available = *available
	} else {
		book.Available = cur.Available
	}
	repo.db.books[book.ID] = &book
	return book, nil
}

func (repo *libraryRepository) DeleteBook(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.books[id]; !ok {
		return library.ErrBookNotFound
	}
	delete(repo.db.books, id)
	// returned history goes with the book
	for recID, rec := range repo.db.borrows {
		if rec.BookID == id {
			delete(repo.db.borrows, recID)
		}
	}
	return nil
}

func (repo *libraryRepository) AdjustBookAvailable(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	book, ok := repo.db.books[bookID]
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	next := book.Available + delta
	if next < 0 || next > book.Quantity {
		return library.Book{}, library.ErrBookUnavailable
	}
	book.Available = next
	return *book, nil
}

// Borrow records

func (repo *libraryRepository) CreateBorrow(ctx context.Context, rec library.BorrowRecord, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.borrows {
		if existing.BookID == rec.BookID && existing.StudentID == rec.StudentID && existing.IsActive() {
			return library.BorrowRecord{}, library.ErrDuplicateBorrow
		}
	}
	repo.db.borrows[rec.ID] = &rec
	return rec, nil
}

func (repo *libraryRepository) GetBorrowByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.borrows[id]; ok {
		return *rec, nil
	}
	return library.BorrowRecord{}, library.ErrRecordNotFound
}

func (repo *libraryRepository) GetActiveBorrow(ctx context.Context, bookID, studentID string, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.borrows {
		if rec.BookID == bookID && rec.StudentID == studentID && rec.IsActive() {
			return *rec, nil
		}
	}
	return library.BorrowRecord{}, library.ErrRecordNotFound
}

func (repo *libraryRepository) QueryBorrows(ctx context.Context, filter *library.BorrowQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]library.BorrowRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := repo.queryBorrows()
	if filter == nil || filter.IsEmpty() {
		return recs, nil
	}

	var filtered []library.BorrowRecord
	for _, rec := range recs {
		if filter.BookID != "" && rec.BookID != filter.BookID {
			continue
		}
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered, nil
}

func (repo *libraryRepository) UpdateBorrow(ctx context.Context, rec library.BorrowRecord, exec ...core.DBExecutor) (library.BorrowRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.borrows[rec.ID]; !ok {
		return library.BorrowRecord{}, library.ErrRecordNotFound
	}
	repo.db.borrows[rec.ID] = &rec
	return rec, nil
}

func (repo *libraryRepository) QueryDueBorrows(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]library.BorrowRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var due []library.BorrowRecord
	for _, rec := range repo.queryBorrows() {
		if rec.Status == library.StatusBorrowed && rec.DueDate.Before(asOf) {
			due = append(due, rec)
		}
	}
	return due, nil
}

func (repo *libraryRepository) MarkBorrowsOverdue(ctx context.Context, now time.Time, ids []string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		if rec, ok := repo.db.borrows[id]; ok && rec.Status == library.StatusBorrowed {
			rec.Status = library.StatusOverdue
			rec.UpdatedAt = now
		}
	}
	return nil
}

func (repo *libraryRepository) CountActiveBorrowsByBook(ctx context.Context, bookID string, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, rec := range repo.db.borrows {
		if rec.BookID == bookID && rec.IsActive() {
			n++
		}
	}
	return n, nil
}

func (repo *libraryRepository) CountActiveBorrowsByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, rec := range repo.db.borrows {
		if rec.StudentID == studentID && rec.IsActive() {
			n++
		}
	}
	return n, nil
}
