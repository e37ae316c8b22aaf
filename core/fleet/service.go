package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// MaxSpeed is the ceiling reported speeds are clamped to (km/h).
// Clamping is explicit policy for noisy GPS readings, not silent coercion.
const MaxSpeed = 120.0

var (
	NowFunc = time.Now // mockable

	// errors
	ErrBusNotFound      = core.NewNotFoundError("bus not found")
	ErrLocationNotFound = core.NewNotFoundError("no location reported for this bus")
)

type (
	Repository interface {
		CreateBus(ctx context.Context, bus Bus, exec ...core.DBExecutor) (Bus, error)
		GetBusByID(ctx context.Context, id string, exec ...core.DBExecutor) (Bus, error)
		QueryBuses(ctx context.Context, filter *BusQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Bus, error)
		UpdateBus(ctx context.Context, bus Bus, exec ...core.DBExecutor) (Bus, error)
		// DeleteBus removes the bus and its location row.
		DeleteBus(ctx context.Context, id string, exec ...core.DBExecutor) error
		// SetBusPosition overwrites the bus's last-known position and forces
		// its status.
		SetBusPosition(ctx context.Context, busID string, lat, lng, speed float64, at time.Time, status BusStatus, exec ...core.DBExecutor) (Bus, error)
		SetBusStatus(ctx context.Context, busID string, status BusStatus, exec ...core.DBExecutor) (Bus, error)

		// UpsertLocation writes the location row for its bus, creating it
		// with IsSharing=true on first report and leaving IsSharing
		// untouched on subsequent ones.
		UpsertLocation(ctx context.Context, loc BusLocation, exec ...core.DBExecutor) (BusLocation, error)
		GetLocation(ctx context.Context, busID string, exec ...core.DBExecutor) (BusLocation, error)
		SetLocationSharing(ctx context.Context, busID string, sharing bool, exec ...core.DBExecutor) (BusLocation, error)
		QuerySharedLocations(ctx context.Context, exec ...core.DBExecutor) ([]BusLocation, error)
	}

	Service struct {
		db   core.DB // nil in tests; in-memory repositories apply writes atomically
		repo Repository
		conf *core.Config
	}
)

func NewService(db core.DB, repo Repository, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, conf: conf}
}

func NewServiceMock(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) transact(ctx context.Context, fn func(exec ...core.DBExecutor) error) error {
	if svc.db == nil {
		return fn()
	}
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(rbErr, "rolling back transaction")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (svc *Service) isStale(loc BusLocation, now time.Time) bool {
	return loc.LastUpdated.Before(now.Add(-svc.conf.Fleet.FreshnessWindow))
}

func (svc *Service) status(loc BusLocation, now time.Time) LocationStatus {
	return LocationStatus{BusLocation: loc, IsStale: svc.isStale(loc, now)}
}

// Buses

func (svc *Service) CreateBus(ctx context.Context, nb NewBus) (Bus, error) {
	now := NowFunc().UTC()
	return svc.repo.CreateBus(ctx, Bus{
		ID:          uuid.New().String(),
		Number:      nb.Number,
		DriverName:  nb.DriverName,
		DriverPhone: nb.DriverPhone,
		Route:       nb.Route,
		Status:      StatusInactive, // until the first location report
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetBus(ctx context.Context, id string) (Bus, error) {
	return svc.repo.GetBusByID(ctx, id)
}

func (svc *Service) QueryBuses(ctx context.Context, filter *BusQueryFilter, ordering ...core.DBOrdering) ([]Bus, error) {
	return svc.repo.QueryBuses(ctx, filter, ordering)
}

func (svc *Service) UpdateBus(ctx context.Context, id string, ub UpdateBus) (Bus, error) {
	bus, err := svc.repo.GetBusByID(ctx, id)
	if err != nil {
		return Bus{}, err
	}
	if ub.Number != "" {
		bus.Number = ub.Number
	}
	if ub.DriverName != "" {
		bus.DriverName = ub.DriverName
	}
	if ub.DriverPhone != "" {
		bus.DriverPhone = ub.DriverPhone
	}
	if ub.Route != "" {
		bus.Route = ub.Route
	}
	bus.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateBus(ctx, bus)
}

func (svc *Service) DeleteBus(ctx context.Context, id string) error {
	return svc.repo.DeleteBus(ctx, id)
}

// Live location

// ReportLocation ingests a live position report: the location row is
// upserted and the bus's last-known position refreshed in one
// transaction. Last write wins; no history is retained.
func (svc *Service) ReportLocation(ctx context.Context, busID string, rep LocationReport) (LocationStatus, error) {
	if _, err := svc.repo.GetBusByID(ctx, busID); err != nil {
		return LocationStatus{}, err
	}

	now := NowFunc().UTC()

	var speed float64
	if rep.Speed != nil {
		speed = *rep.Speed
		if speed < 0 {
			speed = 0
		} else if speed > MaxSpeed {
			speed = MaxSpeed
		}
	}

	loc := BusLocation{
		BusID:       busID,
		Latitude:    *rep.Latitude,
		Longitude:   *rep.Longitude,
		Speed:       speed,
		Heading:     null.Float64FromPtr(rep.Heading),
		Accuracy:    null.Float64FromPtr(rep.Accuracy),
		IsSharing:   true, // only applied on first insert; preserved afterwards
		DriverID:    null.NewString(rep.DriverID, rep.DriverID != ""),
		DriverName:  rep.DriverName,
		LastUpdated: now,
	}

	err := svc.transact(ctx, func(exec ...core.DBExecutor) error {
		var err error
		if loc, err = svc.repo.UpsertLocation(ctx, loc, exec...); err != nil {
			return err
		}
		_, err = svc.repo.SetBusPosition(ctx, busID, loc.Latitude, loc.Longitude, loc.Speed, now, StatusActive, exec...)
		return err
	})
	if err != nil {
		return LocationStatus{}, err
	}
	return svc.status(loc, now), nil
}

// ToggleSharing flips the bus's sharing flag without touching its
// coordinates or timestamp. Calling it twice restores the original value.
func (svc *Service) ToggleSharing(ctx context.Context, busID string) (LocationStatus, error) {
	loc, err := svc.repo.GetLocation(ctx, busID)
	if err != nil {
		return LocationStatus{}, err
	}
	if loc, err = svc.repo.SetLocationSharing(ctx, busID, !loc.IsSharing); err != nil {
		return LocationStatus{}, err
	}
	return svc.status(loc, NowFunc().UTC()), nil
}

// StopSharing forces the bus off the live map: sharing off, bus INACTIVE.
// Idempotent; the location row is kept, never deleted.
func (svc *Service) StopSharing(ctx context.Context, busID string) (LocationStatus, error) {
	var loc BusLocation
	err := svc.transact(ctx, func(exec ...core.DBExecutor) error {
		var err error
		if loc, err = svc.repo.SetLocationSharing(ctx, busID, false, exec...); err != nil {
			return err
		}
		_, err = svc.repo.SetBusStatus(ctx, busID, StatusInactive, exec...)
		return err
	})
	if err != nil {
		return LocationStatus{}, err
	}
	return svc.status(loc, NowFunc().UTC()), nil
}

// GetLocation returns the bus's current location with its staleness flag.
func (svc *Service) GetLocation(ctx context.Context, busID string) (LocationStatus, error) {
	loc, err := svc.repo.GetLocation(ctx, busID)
	if err != nil {
		return LocationStatus{}, err
	}
	return svc.status(loc, NowFunc().UTC()), nil
}

// QuerySharedLocations returns every location currently being shared.
func (svc *Service) QuerySharedLocations(ctx context.Context) ([]LocationStatus, error) {
	locs, err := svc.repo.QuerySharedLocations(ctx)
	if err != nil {
		return nil, err
	}
	now := NowFunc().UTC()
	statuses := make([]LocationStatus, 0, len(locs))
	for _, loc := range locs {
		statuses = append(statuses, svc.status(loc, now))
	}
	return statuses, nil
}
