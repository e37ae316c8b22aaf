package sqlxrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fleet"
)

type (
	busRow struct {
		ID          string    `db:"id"`
		Number      string    `db:"number"`
		DriverName  string    `db:"driver_name"`
		DriverPhone string    `db:"driver_phone"`
		Route       string    `db:"route"`
		CurrentLat  float64   `db:"current_lat"`
		CurrentLng  float64   `db:"current_lng"`
		Speed       float64   `db:"speed"`
		Status      string    `db:"status"`
		LastUpdate  null.Time `db:"last_update"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	locationRow struct {
		BusID       string       `db:"bus_id"`
		Latitude    float64      `db:"latitude"`
		Longitude   float64      `db:"longitude"`
		Speed       float64      `db:"speed"`
		Heading     null.Float64 `db:"heading"`
		Accuracy    null.Float64 `db:"accuracy"`
		IsSharing   bool         `db:"is_sharing"`
		DriverID    null.String  `db:"driver_id"`
		DriverName  string       `db:"driver_name"`
		LastUpdated time.Time    `db:"last_updated"`
	}

	fleetRepository struct {
		exec core.DBExecutor
	}
)

var _ fleet.Repository = (*fleetRepository)(nil) // interface compliance check

func NewFleetRepository(exec core.DBExecutor) *fleetRepository {
	return &fleetRepository{exec: exec}
}

func (repo fleetRepository) busRow(bus fleet.Bus) busRow {
	return busRow{
		ID:          bus.ID,
		Number:      bus.Number,
		DriverName:  bus.DriverName,
		DriverPhone: bus.DriverPhone,
		Route:       bus.Route,
		CurrentLat:  bus.CurrentLat,
		CurrentLng:  bus.CurrentLng,
		Speed:       bus.Speed,
		Status:      string(bus.Status),
		LastUpdate:  bus.LastUpdate,
		CreatedAt:   bus.CreatedAt.UTC(),
		UpdatedAt:   bus.UpdatedAt.UTC(),
	}
}

func (repo fleetRepository) bus(row busRow) fleet.Bus {
	return fleet.Bus{
		ID:          row.ID,
		Number:      row.Number,
		DriverName:  row.DriverName,
		DriverPhone: row.DriverPhone,
		Route:       row.Route,
		CurrentLat:  row.CurrentLat,
		CurrentLng:  row.CurrentLng,
		Speed:       row.Speed,
		Status:      fleet.BusStatus(row.Status),
		LastUpdate:  row.LastUpdate,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (repo fleetRepository) locationRow(loc fleet.BusLocation) locationRow {
	return locationRow{
		BusID:       loc.BusID,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Speed:       loc.Speed,
		Heading:     loc.Heading,
		Accuracy:    loc.Accuracy,
		IsSharing:   loc.IsSharing,
		DriverID:    loc.DriverID,
		DriverName:  loc.DriverName,
		LastUpdated: loc.LastUpdated.UTC(),
	}
}

func (repo fleetRepository) location(row locationRow) fleet.BusLocation {
	return fleet.BusLocation{
		BusID:       row.BusID,
		Latitude:    row.Latitude,
		Longitude:   row.Longitude,
		Speed:       row.Speed,
		Heading:     row.Heading,
		Accuracy:    row.Accuracy,
		IsSharing:   row.IsSharing,
		DriverID:    row.DriverID,
		DriverName:  row.DriverName,
		LastUpdated: row.LastUpdated,
	}
}

// Buses

func (repo fleetRepository) CreateBus(ctx context.Context, bus fleet.Bus, exec ...core.DBExecutor) (fleet.Bus, error) {
	q, args, err := dialect.Insert("bus").Prepared(true).Rows(repo.busRow(bus)).ToSQL()
	if err != nil {
		return fleet.Bus{}, errors.Wrap(err, "building bus insert")
	}
	if _, err = getExec(repo.exec, exec).ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return fleet.Bus{}, core.NewConflictError("a bus with this number already exists")
		}
		return fleet.Bus{}, errors.Wrap(err, "inserting bus")
	}
	return bus, nil
}

func (repo fleetRepository) GetBusByID(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Bus, error) {
	q, args, err := dialect.From("bus").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return fleet.Bus{}, errors.Wrap(err, "building bus query")
	}
	var row busRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.Bus{}, trapNoRowsErr(err, fleet.ErrBusNotFound, "getting bus")
	}
	return repo.bus(row), nil
}

func (repo fleetRepository) QueryBuses(ctx context.Context, filter *fleet.BusQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]fleet.Bus, error) {
	ds := dialect.From("bus").Prepared(true)
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			ds = ds.Where(goqu.Or(
				goqu.C("number").ILike(pat),
				goqu.C("route").ILike(pat),
				goqu.C("driver_name").ILike(pat),
			))
		}
		if filter.Status != "" {
			ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
		}
	}
	ds = ds.Order(orderingExprs(ordering, goqu.C("number").Asc())...)

	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building buses query")
	}
	var rows []busRow
	if err = getExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying buses")
	}
	buses := make([]fleet.Bus, 0, len(rows))
	for _, row := range rows {
		buses = append(buses, repo.bus(row))
	}
	return buses, nil
}

func (repo fleetRepository) UpdateBus(ctx context.Context, bus fleet.Bus, exec ...core.DBExecutor) (fleet.Bus, error) {
	q, args, err := dialect.Update("bus").Prepared(true).
		Set(repo.busRow(bus)).
		Where(goqu.C("id").Eq(bus.ID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return fleet.Bus{}, errors.Wrap(err, "building bus update")
	}
	var row busRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.Bus{}, trapNoRowsErr(err, fleet.ErrBusNotFound, "updating bus")
	}
	return repo.bus(row), nil
}

func (repo fleetRepository) DeleteBus(ctx context.Context, id string, exec ...core.DBExecutor) error {
	// the location row goes with it (ON DELETE CASCADE)
	q, args, err := dialect.Delete("bus").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building bus delete")
	}
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting bus")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fleet.ErrBusNotFound
	}
	return nil
}

func (repo fleetRepository) SetBusPosition(ctx context.Context, busID string, lat, lng, speed float64, at time.Time, status fleet.BusStatus, exec ...core.DBExecutor) (fleet.Bus, error) {
	q, args, err := dialect.Update("bus").Prepared(true).
		Set(goqu.Record{
			"current_lat": lat,
			"current_lng": lng,
			"speed":       speed,
			"status":      string(status),
			"last_update": at.UTC(),
			"updated_at":  at.UTC(),
		}).
		Where(goqu.C("id").Eq(busID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return fleet.Bus{}, errors.Wrap(err, "building bus position update")
	}
	var row busRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.Bus{}, trapNoRowsErr(err, fleet.ErrBusNotFound, "updating bus position")
	}
	return repo.bus(row), nil
}

func (repo fleetRepository) SetBusStatus(ctx context.Context, busID string, status fleet.BusStatus, exec ...core.DBExecutor) (fleet.Bus, error) {
	q, args, err := dialect.Update("bus").Prepared(true).
		Set(goqu.Record{"status": string(status)}).
		Where(goqu.C("id").Eq(busID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return fleet.Bus{}, errors.Wrap(err, "building bus status update")
	}
	var row busRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.Bus{}, trapNoRowsErr(err, fleet.ErrBusNotFound, "updating bus status")
	}
	return repo.bus(row), nil
}

// Live locations

func (repo fleetRepository) UpsertLocation(ctx context.Context, loc fleet.BusLocation, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	// last write wins; is_sharing only takes effect on first insert
	q, args, err := dialect.Insert("bus_location").Prepared(true).
		Rows(repo.locationRow(loc)).
		OnConflict(goqu.DoUpdate("bus_id", goqu.Record{
			"latitude":     loc.Latitude,
			"longitude":    loc.Longitude,
			"speed":        loc.Speed,
			"heading":      loc.Heading,
			"accuracy":     loc.Accuracy,
			"driver_id":    loc.DriverID,
			"driver_name":  loc.DriverName,
			"last_updated": loc.LastUpdated.UTC(),
		})).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return fleet.BusLocation{}, errors.Wrap(err, "building location upsert")
	}
	var row locationRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.BusLocation{}, errors.Wrap(err, "upserting location")
	}
	return repo.location(row), nil
}

func (repo fleetRepository) GetLocation(ctx context.Context, busID string, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	q, args, err := dialect.From("bus_location").Prepared(true).Where(goqu.C("bus_id").Eq(busID)).ToSQL()
	if err != nil {
		return fleet.BusLocation{}, errors.Wrap(err, "building location query")
	}
	var row locationRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.BusLocation{}, trapNoRowsErr(err, fleet.ErrLocationNotFound, "getting location")
	}
	return repo.location(row), nil
}

func (repo fleetRepository) SetLocationSharing(ctx context.Context, busID string, sharing bool, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	q, args, err := dialect.Update("bus_location").Prepared(true).
		Set(goqu.Record{"is_sharing": sharing}).
		Where(goqu.C("bus_id").Eq(busID)).
		Returning(goqu.Star()).
		ToSQL()
	if err != nil {
		return fleet.BusLocation{}, errors.Wrap(err, "building sharing update")
	}
	var row locationRow
	if err = getExec(repo.exec, exec).GetContext(ctx, &row, q, args...); err != nil {
		return fleet.BusLocation{}, trapNoRowsErr(err, fleet.ErrLocationNotFound, "updating sharing flag")
	}
	return repo.location(row), nil
}

func (repo fleetRepository) QuerySharedLocations(ctx context.Context, exec ...core.DBExecutor) ([]fleet.BusLocation, error) {
	q, args, err := dialect.From("bus_location").Prepared(true).
		Where(goqu.C("is_sharing").IsTrue()).
		Order(goqu.C("bus_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building shared locations query")
	}
	var rows []locationRow
	if err = getExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying shared locations")
	}
	locs := make([]fleet.BusLocation, 0, len(rows))
	for _, row := range rows {
		locs = append(locs, repo.location(row))
	}
	return locs, nil
}
