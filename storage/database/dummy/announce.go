package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/announce"
)

type announceRepository struct {
	db *announceTable
}

var _ announce.Repository = (*announceRepository)(nil) // interface compliance check

func NewAnnounceRepository(db *DB) announce.Repository {
	return &announceRepository{db: db.announce}
}

func (repo *announceRepository) CreateAnnouncement(ctx context.Context, ann announce.Announcement) (announce.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[ann.ID] = &ann
	return ann, nil
}

func (repo *announceRepository) GetAnnouncementByID(ctx context.Context, id string) (announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ann, ok := repo.db.table[id]; ok {
		return *ann, nil
	}
	return announce.Announcement{}, announce.ErrNotFound
}

func (repo *announceRepository) QueryAnnouncements(ctx context.Context, filter *announce.QueryFilter, ordering []core.DBOrdering) ([]announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	anns := make([]announce.Announcement, 0, len(repo.db.table))
	for _, ann := range repo.db.table {
		if filter != nil && filter.Audience != "" && ann.Audience != filter.Audience {
			continue
		}
		anns = append(anns, *ann)
	}
	// newest first
	sort.Slice(anns, func(i, j int) bool { return anns[i].CreatedAt.After(anns[j].CreatedAt) })
	return anns, nil
}

func (repo *announceRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return announce.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
