package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/fleet"
	"github.com/trezcool/shule/core/library"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	name, admissionNo, class, email string,
) student.Student {
	t.Helper()

	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		ID:          uuid.New().String(),
		Name:        name,
		AdmissionNo: admissionNo,
		Class:       class,
		Email:       email,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func CreateBook(
	t *testing.T,
	repo library.Repository,
	title, author string,
	quantity int,
) library.Book {
	t.Helper()

	now := time.Now().UTC()
	book, err := repo.CreateBook(context.Background(), library.Book{
		ID:        uuid.New().String(),
		Title:     title,
		Author:    author,
		Quantity:  quantity,
		Available: quantity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateBook() failed: %v", err)
	}
	return book
}

func CreateBus(
	t *testing.T,
	repo fleet.Repository,
	number, route, driverName string,
) fleet.Bus {
	t.Helper()

	now := time.Now().UTC()
	bus, err := repo.CreateBus(context.Background(), fleet.Bus{
		ID:         uuid.New().String(),
		Number:     number,
		Route:      route,
		DriverName: driverName,
		Status:     fleet.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateBus() failed: %v", err)
	}
	return bus
}
