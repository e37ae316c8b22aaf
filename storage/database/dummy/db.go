// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"sync"

	"github.com/trezcool/shule/core/announce"
	"github.com/trezcool/shule/core/fleet"
	"github.com/trezcool/shule/core/library"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	DB struct {
		user     *userTable
		student  *studentTable
		library  *libraryTables
		fleet    *fleetTables
		announce *announceTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}

	libraryTables struct {
		sync.RWMutex
		books   map[string]*library.Book
		borrows map[string]*library.BorrowRecord
	}

	fleetTables struct {
		sync.RWMutex
		buses     map[string]*fleet.Bus
		locations map[string]*fleet.BusLocation // keyed by bus ID
	}

	announceTable struct {
		sync.RWMutex
		table map[string]*announce.Announcement
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		student:  &studentTable{table: make(map[string]*student.Student)},
		library:  &libraryTables{books: make(map[string]*library.Book), borrows: make(map[string]*library.BorrowRecord)},
		fleet:    &fleetTables{buses: make(map[string]*fleet.Bus), locations: make(map[string]*fleet.BusLocation)},
		announce: &announceTable{table: make(map[string]*announce.Announcement)},
	}
	return db, nil
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.student.Lock()
	db.student.table = make(map[string]*student.Student)
	db.student.Unlock()

	db.library.Lock()
	db.library.books = make(map[string]*library.Book)
	db.library.borrows = make(map[string]*library.BorrowRecord)
	db.library.Unlock()

	db.fleet.Lock()
	db.fleet.buses = make(map[string]*fleet.Bus)
	db.fleet.locations = make(map[string]*fleet.BusLocation)
	db.fleet.Unlock()

	db.announce.Lock()
	db.announce.table = make(map[string]*announce.Announcement)
	db.announce.Unlock()
}
