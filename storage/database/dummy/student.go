package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) query() []student.Student {
	students := make([]student.Student, 0, len(repo.db.table))
	for _, std := range repo.db.table {
		students = append(students, *std)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students
}

func (repo *studentRepository) CheckAdmissionNoUniqueness(ctx context.Context, admissionNo string, excluded ...student.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.query() {
		if std.AdmissionNo != admissionNo {
			continue
		}
		var excl bool
		for _, e := range excluded {
			if e.ID == std.ID {
				excl = true
				break
			}
		}
		if !excl {
			return student.ErrAdmissionNoExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := repo.query()
	if filter == nil || filter.IsEmpty() {
		return students, nil
	}

	if filter.Search != "" {
		var filtered []student.Student
		search := strings.ToLower(filter.Search)
		for _, std := range students {
			if strings.Contains(strings.ToLower(std.Name), search) ||
				strings.Contains(strings.ToLower(std.AdmissionNo), search) ||
				strings.Contains(strings.ToLower(std.Email), search) {
				filtered = append(filtered, std)
			}
		}
		students = filtered
	}
	if students != nil && filter.Class != "" {
		var filtered []student.Student
		for _, std := range students {
			if std.Class == filter.Class {
				filtered = append(filtered, std)
			}
		}
		students = filtered
	}
	if students != nil && filter.IsActive != nil {
		var filtered []student.Student
		for _, std := range students {
			if std.IsActive == *filter.IsActive {
				filtered = append(filtered, std)
			}
		}
		students = filtered
	}

	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student, isActive *bool) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[std.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	if isActive != nil {
		std.IsActive = *isActive
	} else {
		std.IsActive = orig.IsActive
	}
	std.CreatedAt = orig.CreatedAt
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
