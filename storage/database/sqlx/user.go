package sqlxrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type (
	userRow struct {
		ID           string         `db:"id"`
		Name         string         `db:"name"`
		Username     null.String    `db:"username"` // NULL when unset so UNIQUE holds
		Email        null.String    `db:"email"`
		IsActive     bool           `db:"is_active"`
		Roles        pq.StringArray `db:"roles"`
		PasswordHash []byte         `db:"password_hash"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
		LastLogin    null.Time      `db:"last_login"`
	}

	userRepository struct {
		exec core.DBExecutor
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) userRow(usr user.User) userRow {
	active := true
	if usr.IsActive != nil {
		active = *usr.IsActive
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     active,
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) user(row userRow) user.User {
	active := row.IsActive
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     &active,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}
	count := func(col, val string) (int, error) {
		ds := dialect.From(goqu.T("user")).Prepared(true).
			Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C(col).Eq(val))
		if len(excluded) > 0 {
			ds = ds.Where(goqu.C("id").NotIn(excluded))
		}
		q, args, err := ds.ToSQL()
		if err != nil {
			return 0, errors.Wrap(err, "building uniqueness check")
		}
		var n int
		if err = repo.exec.GetContext(ctx, &n, q, args...); err != nil {
			return 0, errors.Wrapf(err, "checking %s uniqueness", col)
		}
		return n, nil
	}
	if username != "" {
		n, err := count("username", username)
		if err != nil {
			return err
		}
		if n > 0 {
			return user.ErrUsernameExists
		}
	}
	if email != "" {
		n, err := count("email", email)
		if err != nil {
			return err
		}
		if n > 0 {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q, args, err := dialect.Insert(goqu.T("user")).Prepared(true).Rows(repo.userRow(usr)).ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user insert")
	}
	if _, err = repo.exec.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	q, args, err := dialect.From(goqu.T("user")).Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}
	var row userRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.user(row), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	q, args, err := dialect.From(goqu.T("user")).Prepared(true).
		Where(goqu.Or(
			goqu.C("username").Eq(username),
			goqu.C("email").Eq(username),
		)).
		ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}
	var row userRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.user(row), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	ds := dialect.From(goqu.T("user")).Prepared(true)
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			ds = ds.Where(goqu.Or(
				goqu.C("name").ILike(pat),
				goqu.C("username").ILike(pat),
				goqu.C("email").ILike(pat),
			))
		}
		if len(filter.Roles) > 0 {
			ds = ds.Where(goqu.L("roles && ?", pq.Array(filter.Roles)))
		}
		if filter.IsActive != nil {
			ds = ds.Where(goqu.C("is_active").Eq(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			ds = ds.Where(goqu.C("created_at").Gte(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			ds = ds.Where(goqu.C("created_at").Lte(filter.CreatedTo.UTC()))
		}
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("name").Asc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	var rows []userRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.user(row))
	}
	return users, nil
}

func (repo userRepository) QueryUserEmailsByRolePrefix(ctx context.Context, prefix string) ([]user.User, error) {
	ds := dialect.From(goqu.T("user")).Prepared(true).
		Select("name", "email").
		Where(
			goqu.C("is_active").IsTrue(),
			goqu.C("email").IsNotNull(),
		)
	if prefix != "" {
		ds = ds.Where(goqu.L("EXISTS (SELECT 1 FROM unnest(roles) AS role WHERE role LIKE ?)", prefix+"%"))
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building user emails query")
	}
	var rows []userRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying user emails")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, user.User{Name: row.Name, Email: row.Email.String})
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// partial update: zero-valued fields are left untouched
	rec := goqu.Record{"updated_at": usr.UpdatedAt.UTC()}
	if usr.Name != "" {
		rec["name"] = usr.Name
	}
	if usr.Username != "" {
		rec["username"] = usr.Username
	}
	if usr.Email != "" {
		rec["email"] = usr.Email
	}
	if usr.Roles != nil {
		rec["roles"] = pq.StringArray(usr.Roles)
	}
	if len(usr.PasswordHash) > 0 {
		rec["password_hash"] = usr.PasswordHash
	}
	if !usr.LastLogin.IsZero() {
		rec["last_login"] = usr.LastLogin.UTC()
	}
	if isActive != nil {
		rec["is_active"] = *isActive
	}

	q, args, err := dialect.Update(goqu.T("user")).Prepared(true).
		Set(rec).
		Where(goqu.C("id").Eq(usr.ID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user update")
	}
	var row userRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return repo.user(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := dialect.Delete(goqu.T("user")).Prepared(true).Where(goqu.C("id").In(ids)).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building users delete")
	}
	if _, err = repo.exec.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
