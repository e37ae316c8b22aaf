package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fleet"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
	testutil "github.com/trezcool/shule/tests"
)

func setup(t *testing.T) (*core.Config, fleet.Repository, *fleet.Service) {
	t.Helper()

	conf := core.NewTestConfig()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewFleetRepository(db)
	return conf, repo, fleet.NewServiceMock(repo, conf)
}

func fptr(f float64) *float64 { return &f }

func TestService_CreateBus(t *testing.T) {
	_, _, svc := setup(t)
	ctx := context.Background()

	bus, err := svc.CreateBus(ctx, fleet.NewBus{Number: "AV01", Route: "Gombe - Limete", DriverName: "Papa Jo"})
	if err != nil {
		t.Fatalf("CreateBus() failed: %v", err)
	}
	if bus.Status != fleet.StatusInactive {
		t.Errorf("Status = %s, want %s until the first report", bus.Status, fleet.StatusInactive)
	}
	if bus.LastUpdate.Valid {
		t.Errorf("LastUpdate = %v, want unset", bus.LastUpdate)
	}

	if _, err = svc.GetBus(ctx, "nope"); err != fleet.ErrBusNotFound {
		t.Errorf("GetBus() error = %v, want %v", err, fleet.ErrBusNotFound)
	}
}

func TestService_ReportLocation(t *testing.T) {
	conf, _, svc := setup(t)
	ctx := context.Background()

	now := time.Date(2021, 3, 1, 7, 30, 0, 0, time.UTC)
	fleet.NowFunc = func() time.Time { return now }
	defer func() { fleet.NowFunc = time.Now }()

	bus, err := svc.CreateBus(ctx, fleet.NewBus{Number: "AV01", Route: "Gombe - Limete"})
	if err != nil {
		t.Fatalf("CreateBus() failed: %v", err)
	}

	t.Run("unknown bus", func(t *testing.T) {
		_, err := svc.ReportLocation(ctx, "nope", fleet.LocationReport{Latitude: fptr(
			-4.32), Longitude: fptr(15.31)})
		if err != fleet.ErrBusNotFound {
			t.Errorf("ReportLocation() error = %v, want %v", err, fleet.ErrBusNotFound)
		}
	})

	t.Run("first report activates the bus", func(t *testing.T) {
		loc, err := svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
			Latitude:  fptr(-4.3217),
			Longitude: fptr(15.3125),
			Speed:     fptr(42.5),
		})
		if err != nil {
			t.Fatalf("ReportLocation() failed: %v", err)
		}
		if !loc.IsSharing {
			t.Error("IsSharing = false, want true on first report")
		}
		if loc.IsStale {
			t.Error("IsStale = true, want false")
		}
		if loc.Speed != 42.5 {
			t.Errorf("Speed = %v, want 42.5", loc.Speed)
		}

		b, err := svc.GetBus(ctx, bus.ID)
		if err != nil {
			t.Fatalf("GetBus() failed: %v", err)
		}
		if b.Status != fleet.StatusActive {
			t.Errorf("Status = %s, want %s", b.Status, fleet.StatusActive)
		}
		if b.CurrentLat != -4.3217 || b.CurrentLng != 15.3125 {
			t.Errorf("position = (%v, %v), want (-4.3217, 15.3125)", b.CurrentLat, b.CurrentLng)
		}
		if !b.LastUpdate.Valid || !b.LastUpdate.Time.Equal(now) {
			t.Errorf("LastUpdate = %v, want %s", b.LastUpdate, now)
		}
	})

	t.Run("speed is clamped", func(t *testing.T) {
		loc, err := svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
			Latitude:  fptr(-4.33),
			Longitude: fptr(15.32),
			Speed:     fptr(500.0),
		})
		if err != nil {
			t.Fatalf("ReportLocation() failed: %v", err)
		}
		if loc.Speed != fleet.MaxSpeed {
			t.Errorf("Speed = %v, want %v", loc.Speed, fleet.MaxSpeed)
		}

		if loc, err = svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
			Latitude:  fptr(-4.33),
			Longitude: fptr(15.32),
			Speed:     fptr(-5.0),
		}); err != nil {
			t.Fatalf("ReportLocation() failed: %v", err)
		}
		if loc.Speed != 0 {
			t.Errorf("Speed = %v, want 0", loc.Speed)
		}
	})

	t.Run("goes stale after the freshness window", func(t *testing.T) {
		fleet.NowFunc = func() time.Time { return now.Add(conf.Fleet.FreshnessWindow + time.Minute) }
		loc, err := svc.GetLocation(ctx, bus.ID)
		if err != nil {
			t.Fatalf("GetLocation() failed: %v", err)
		}
		if !loc.IsStale {
			t.Error("IsStale = false, want true")
		}

		// a fresh report clears the flag
		fleet.NowFunc = func() time.Time { return now.Add(conf.Fleet.FreshnessWindow + 2*time.Minute) }
		if loc, err = svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
			Latitude:  fptr(-4.34),
			Longitude: fptr(15.33),
		}); err != nil {
			t.Fatalf("ReportLocation() failed: %v", err)
		}
		if loc.IsStale {
			t.Error("IsStale = true, want false")
		}
	})
}

func TestService_Sharing(t *testing.T) {
	_, _, svc := setup(t)
	ctx := context.Background()

	now := time.Date(2021, 3, 1, 7, 30, 0, 0, time.UTC)
	fleet.NowFunc = func() time.Time { return now }
	defer func() { fleet.NowFunc = time.Now }()

	bus, err := svc.CreateBus(ctx, fleet.NewBus{Number: "AV01", Route: "Gombe - Limete"})
	if err != nil {
		t.Fatalf("CreateBus() failed: %v", err)
	}

	t.Run("no location reported yet", func(t *testing.T) {
		if _, err := svc.GetLocation(ctx, bus.ID); err != fleet.ErrLocationNotFound {
			t.Errorf("GetLocation() error = %v, want %v", err, fleet.ErrLocationNotFound)
		}
		if _, err := svc.ToggleSharing(ctx, bus.ID); err != fleet.ErrLocationNotFound {
			t.Errorf("ToggleSharing() error = %v, want %v", err, fleet.ErrLocationNotFound)
		}
	})

	if _, err = svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
		Latitude:  fptr(-4.3217),
		Longitude: fptr(15.3125),
	}); err != nil {
		t.Fatalf("ReportLocation() failed: %v", err)
	}

	t.Run("toggle flips and restores", func(t *testing.T) {
		loc, err := svc.ToggleSharing(ctx, bus.ID)
		if err != nil {
			t.Fatalf("ToggleSharing() failed: %v", err)
		}
		if loc.IsSharing {
			t.Error("IsSharing = true, want false")
		}
		if loc.Latitude != -4.3217 || loc.Longitude != 15.3125 {
			t.Errorf("position = (%v, %v), coordinates must not move", loc.Latitude, loc.Longitude)
		}

		locs, err := svc.QuerySharedLocations(ctx)
		if err != nil {
			t.Fatalf("QuerySharedLocations() failed: %v", err)
		}
		if len(locs) != 0 {
			t.Errorf("shared locations = %d, want 0", len(locs))
		}

		if loc, err = svc.ToggleSharing(ctx, bus.ID); err != nil {
			t.Fatalf("ToggleSharing() failed: %v", err)
		}
		if !loc.IsSharing {
			t.Error("IsSharing = false, want true")
		}
		if locs, err = svc.QuerySharedLocations(ctx); err != nil {
			t.Fatalf("QuerySharedLocations() failed: %v", err)
		}
		if len(locs) != 1 {
			t.Errorf("shared locations = %d, want 1", len(locs))
		}
	})

	t.Run("stop sharing deactivates the bus", func(t *testing.T) {
		loc, err := svc.StopSharing(ctx, bus.ID)
		if err != nil {
			t.Fatalf("StopSharing() failed: %v", err)
		}
		if loc.IsSharing {
			t.Error("IsSharing = true, want false")
		}
		b, _ := svc.GetBus(ctx, bus.ID)
		if b.Status != fleet.StatusInactive {
			t.Errorf("Status = %s, want %s", b.Status, fleet.StatusInactive)
		}

		// idempotent
		if _, err = svc.StopSharing(ctx, bus.ID); err != nil {
			t.Errorf("StopSharing() failed: %v", err)
		}

		// the location row survives
		if _, err = svc.GetLocation(ctx, bus.ID); err != nil {
			t.Errorf("GetLocation() failed: %v", err)
		}
	})

	t.Run("new reports do not re-enable sharing", func(t *testing.T) {
		loc, err := svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
			Latitude:  fptr(-4.35),
			Longitude: fptr(15.34),
		})
		if err != nil {
			t.Fatalf("ReportLocation() failed: %v", err)
		}
		if loc.IsSharing {
			t.Error("IsSharing = true, want false until toggled back on")
		}
		// the bus itself is back in service
		b, _ := svc.GetBus(ctx, bus.ID)
		if b.Status != fleet.StatusActive {
			t.Errorf("Status = %s, want %s", b.Status, fleet.StatusActive)
		}
	})
}

func TestService_DeleteBus(t *testing.T) {
	_, repo, svc := setup(t)
	ctx := context.Background()

	bus := testutil.CreateBus(t, repo, "AV02", "Ngaliema - Centre", "Maman Titi")
	if _, err := svc.ReportLocation(ctx, bus.ID, fleet.LocationReport{
		Latitude:  fptr(-4.32),
		Longitude: fptr(15.31),
	}); err != nil {
		t.Fatalf("ReportLocation() failed: %v", err)
	}

	if err := svc.DeleteBus(ctx, bus.ID); err != nil {
		t.Fatalf("DeleteBus() failed: %v", err)
	}
	if _, err := svc.GetBus(ctx, bus.ID); err != fleet.ErrBusNotFound {
		t.Errorf("GetBus() error = %v, want %v", err, fleet.ErrBusNotFound)
	}
	// the location row goes with the bus
	if _, err := svc.GetLocation(ctx, bus.ID); err != fleet.ErrLocationNotFound {
		t.Errorf("GetLocation() error = %v, want %v", err, fleet.ErrLocationNotFound)
	}
}
