package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fleet"
)

type fleetRepository struct {
	db *fleetTables
}

var _ fleet.Repository = (*fleetRepository)(nil) // interface compliance check

func NewFleetRepository(db *DB) fleet.Repository {
	return &fleetRepository{db: db.fleet}
}

func (repo *fleetRepository) queryBuses() []fleet.Bus {
	buses := make([]fleet.Bus, 0, len(repo.db.buses))
	for _, bus := range repo.db.buses {
		buses = append(buses, *bus)
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].Number < buses[j].Number })
	return buses
}

// Buses

func (repo *fleetRepository) CreateBus(ctx context.Context, bus fleet.Bus, exec ...core.DBExecutor) (fleet.Bus, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.buses {
		if existing.Number == bus.Number {
			return fleet.Bus{}, core.NewConflictError("a bus with this number already exists")
		}
	}
	repo.db.buses[bus.ID] = &bus
	return bus, nil
}

func (repo *fleetRepository) GetBusByID(ctx context.Context, id string, exec ...core.DBExecutor) (fleet.Bus, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if bus, ok := repo.db.buses[id]; ok {
		return *bus, nil
	}
	return fleet.Bus{}, fleet.ErrBusNotFound
}

func (repo *fleetRepository) QueryBuses(ctx context.Context, filter *fleet.BusQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]fleet.Bus, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	buses := repo.queryBuses()
	if filter == nil || filter.IsEmpty() {
		return buses, nil
	}

	var filtered []fleet.Bus
	search := strings.ToLower(filter.Search)
	for _, bus := range buses {
		if search != "" &&
			!strings.Contains(strings.ToLower(bus.Number), search) &&
			!strings.Contains(strings.ToLower(bus.Route), search) &&
			!strings.Contains(strings.ToLower(bus.DriverName), search) {
			continue
		}
		if filter.Status != "" && bus.Status != filter.Status {
			continue
		}
		filtered = append(filtered, bus)
	}
	return filtered, nil
}

func (repo *fleetRepository) UpdateBus(ctx context.Context, bus fleet.Bus, exec ...core.DBExecutor) (fleet.Bus, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.buses[bus.ID]; !ok {
		return fleet.Bus{}, fleet.ErrBusNotFound
	}
	repo.db.buses[bus.ID] = &bus
	return bus, nil
}

func (repo *fleetRepository) DeleteBus(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.buses[id]; !ok {
		return fleet.ErrBusNotFound
	}
	delete(repo.db.buses, id)
	delete(repo.db.locations, id)
	return nil
}

func (repo *fleetRepository) SetBusPosition(ctx context.Context, busID string, lat, lng, speed float64, at time.Time, status fleet.BusStatus, exec ...core.DBExecutor) (fleet.Bus, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	bus, ok := repo.db.buses[busID]
	if !ok {
		return fleet.Bus{}, fleet.ErrBusNotFound
	}
	bus.CurrentLat = lat
	bus.CurrentLng = lng
	bus.Speed = speed
	bus.Status = status
	bus.LastUpdate = null.TimeFrom(at)
	bus.UpdatedAt = at
	return *bus, nil
}

func (repo *fleetRepository) SetBusStatus(ctx context.Context, busID string, status fleet.BusStatus, exec ...core.DBExecutor) (fleet.Bus, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	bus, ok := repo.db.buses[busID]
	if !ok {
		return fleet.Bus{}, fleet.ErrBusNotFound
	}
	bus.Status = status
	return *bus, nil
}

// Live locations

func (repo *fleetRepository) UpsertLocation(ctx context.Context, loc fleet.BusLocation, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if existing, ok := repo.db.locations[loc.BusID]; ok {
		loc.IsSharing = existing.IsSharing // sharing flag survives reports
	}
	repo.db.locations[loc.BusID] = &loc
	return loc, nil
}

func (repo *fleetRepository) GetLocation(ctx context.Context, busID string, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if loc, ok := repo.db.locations[busID]; ok {
		return *loc, nil
	}
	return fleet.BusLocation{}, fleet.ErrLocationNotFound
}

func (repo *fleetRepository) SetLocationSharing(ctx context.Context, busID string, sharing bool, exec ...core.DBExecutor) (fleet.BusLocation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	loc, ok := repo.db.locations[busID]
	if !ok {
		return fleet.BusLocation{}, fleet.ErrLocationNotFound
	}
	loc.IsSharing = sharing
	return *loc, nil
}

func (repo *fleetRepository) QuerySharedLocations(ctx context.Context, exec ...core.DBExecutor) ([]fleet.BusLocation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var locs []fleet.BusLocation
	for _, loc := range repo.db.locations {
		if loc.IsSharing {
			locs = append(locs, *loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].BusID < locs[j].BusID })
	return locs, nil
}
