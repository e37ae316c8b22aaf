package main

import (
	"context"
	"net/mail"

	"github.com/trezcool/shule/core/announce"
	"github.com/trezcool/shule/core/library"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

// studentDirectory adapts the roster service to the lending engine's view
// of a student.
type studentDirectory struct {
	svc *student.Service
}

var _ library.StudentDirectory = (*studentDirectory)(nil)

func (dir studentDirectory) GetStudent(ctx context.Context, id string) (library.StudentInfo, error) {
	std, err := dir.svc.GetByID(ctx, id)
	if err != nil {
		return library.StudentInfo{}, err
	}
	return library.StudentInfo{ID: std.ID, Name: std.Name, Email: std.Email}, nil
}

// recipientDirectory resolves announcement audiences to user emails by
// role prefix.
type recipientDirectory struct {
	svc *user.Service
}

var _ announce.RecipientDirectory = (*recipientDirectory)(nil)

func (dir recipientDirectory) AudienceEmails(ctx context.Context, aud announce.Audience) ([]mail.Address, error) {
	var prefix string
	switch aud {
	case announce.AudienceStudents:
		prefix = user.RoleStudent
	case announce.AudienceTeachers:
		prefix = user.RoleTeacher
	}

	users, err := dir.svc.QueryEmailsByRolePrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(users))
	for _, usr := range users {
		addrs = append(addrs, mail.Address{Name: usr.Name, Address: usr.Email})
	}
	return addrs, nil
}
