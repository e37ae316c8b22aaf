package sqlxrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/announce"
)

type (
	announcementRow struct {
		ID        string    `db:"id"`
		Title     string    `db:"title"`
		Body      string    `db:"body"`
		Audience  string    `db:"audience"`
		CreatedBy string    `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	announceRepository struct {
		exec core.DBExecutor
	}
)

var _ announce.Repository = (*announceRepository)(nil) // interface compliance check

func NewAnnounceRepository(exec core.DBExecutor) *announceRepository {
	return &announceRepository{exec: exec}
}

func (repo announceRepository) announcementRow(ann announce.Announcement) announcementRow {
	return announcementRow{
		ID:        ann.ID,
		Title:     ann.Title,
		Body:      ann.Body,
		Audience:  string(ann.Audience),
		CreatedBy: ann.CreatedBy,
		CreatedAt: ann.CreatedAt.UTC(),
	}
}

func (repo announceRepository) announcement(row announcementRow) announce.Announcement {
	return announce.Announcement{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		Audience:  announce.Audience(row.Audience),
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}
}

func (repo announceRepository) CreateAnnouncement(ctx context.Context, ann announce.Announcement) (announce.Announcement, error) {
	q, args, err := dialect.Insert("announcement").Prepared(true).Rows(repo.announcementRow(ann)).ToSQL()
	if err != nil {
		return announce.Announcement{}, errors.Wrap(err, "building announcement insert")
	}
	if _, err = repo.exec.ExecContext(ctx, q, args...); err != nil {
		return announce.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return ann, nil
}

func (repo announceRepository) GetAnnouncementByID(ctx context.Context, id string) (announce.Announcement, error) {
	q, args, err := dialect.From("announcement").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return announce.Announcement{}, errors.Wrap(err, "building announcement query")
	}
	var row announcementRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return announce.Announcement{}, trapNoRowsErr(err, announce.ErrNotFound, "getting announcement")
	}
	return repo.announcement(row), nil
}

func (repo announceRepository) QueryAnnouncements(ctx context.Context, filter *announce.QueryFilter, ordering []core.DBOrdering) ([]announce.Announcement, error) {
	ds := dialect.From("announcement").Prepared(true)
	if filter != nil && filter.Audience != "" {
		ds = ds.Where(goqu.C("audience").Eq(string(filter.Audience)))
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("created_at").Desc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building announcements query")
	}
	var rows []announcementRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	anns := make([]announce.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, repo.announcement(row))
	}
	return anns, nil
}

func (repo announceRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	q, args, err := dialect.Delete("announcement").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building announcement delete")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return announce.ErrNotFound
	}
	return nil
}
