package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/shule/core/fleet"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func Test_fleetApi_buses(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)
	heroToken := getToken(t, hero)

	t.Run("create requires admin", func(t *testing.T) {
		body := marchallObj(t, echoMap{"number": "AV01"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses", heroToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	var bus fleet.Bus
	t.Run("create", func(t *testing.T) {
		body := marchallObj(t, echoMap{"number": "AV01", "route": "Gombe - Limete", "driver_name": "Serge"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses", adminToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &bus); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if bus.Status != fleet.StatusInactive {
			t.Errorf("Status = %q; want %q until the first location report", bus.Status, fleet.StatusInactive)
		}
	})

	t.Run("duplicate fleet number", func(t *testing.T) {
		body := marchallObj(t, echoMap{"number": "AV01"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses", adminToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "a bus with this number already exists"})}, rec)
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fleet/buses", heroToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantData: marchallList(t, bus)}, rec)
	})

	t.Run("update", func(t *testing.T) {
		body := marchallObj(t, echoMap{"driver_name": "Patrice"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/fleet/buses/"+bus.ID, adminToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated fleet.Bus
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if updated.DriverName != "Patrice" {
			t.Errorf("DriverName = %q; want %q", updated.DriverName, "Patrice")
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/fleet/buses/"+bus.ID, adminToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})
}

func Test_fleetApi_liveLocation(t *testing.T) {
	db.Reset()

	_ = testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	driver := testutil.CreateUser(t, usrRepo, "Serge", "serge1", "serge@test.cd", "", []string{user.RoleDriver}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	driverToken := getToken(t, driver)
	heroToken := getToken(t, hero)

	bus := testutil.CreateBus(t, fleetRepo, "AV01", "Gombe - Limete", "Serge")

	now := time.Now().UTC()
	fleet.NowFunc = func() time.Time { return now }
	defer func() { fleet.NowFunc = time.Now }()

	report := func(lat, lng, speed float64) []byte {
		return marchallObj(t, echoMap{"latitude": lat, "longitude": lng, "speed": speed, "driver_name": "Serge"})
	}

	t.Run("report requires driver or admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", heroToken, report(-4.32, 15.31, 40))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("report validates coordinates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", driverToken, report(-95, 15.31, 40))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("report", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", driverToken, report(-4.32, 15.31, 40))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var status fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if !status.IsSharing || status.IsStale {
			t.Errorf("unexpected status: %+v", status)
		}
		if status.DriverID.String != driver.ID {
			t.Errorf("DriverID = %v; want the reporting driver's", status.DriverID)
		}
	})

	t.Run("speed is clamped", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", driverToken, report(-4.32, 15.31, 500))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var status fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if status.Speed != fleet.MaxSpeed {
			t.Errorf("Speed = %v; want %v", status.Speed, fleet.MaxSpeed)
		}
	})

	t.Run("everyone sees the shared location", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fleet/buses/"+bus.ID+"/location", heroToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("stale after the freshness window", func(t *testing.T) {
		fleet.NowFunc = func() time.Time { return now.Add(conf.Fleet.FreshnessWindow + time.Minute) }
		defer func() { fleet.NowFunc = func() time.Time { return now } }()

		req, rec := newAuthRequest(http.MethodGet, "/v1/fleet/buses/"+bus.ID+"/location", heroToken)
		app.ServeHTTP(rec, req)

		var status fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if !status.IsStale {
			t.Error("expected a stale location")
		}
	})

	t.Run("locations map", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fleet/locations", heroToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var statuses []fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(statuses) != 1 || statuses[0].BusID != bus.ID {
			t.Errorf("unexpected statuses: %+v", statuses)
		}
	})

	t.Run("toggle sharing hides the bus", func(t *testing.T) {
		body := marchallObj(t, echoMap{"action": "toggleSharing"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", driverToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var status fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if status.IsSharing {
			t.Error("expected sharing to be off")
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/fleet/locations", heroToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantData: marchallList(t, []interface{}{}...)}, rec)
	})

	t.Run("a new report does not flip sharing back on", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/fleet/buses/"+bus.ID+"/location", driverToken, report(-4.33, 15.32, 35))
		app.ServeHTTP(rec, req)

		var status fleet.LocationStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if status.IsSharing {
			t.Error("sharing flag must survive location reports")
		}
	})

	t.Run("stop sharing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/fleet/buses/"+bus.ID+"/location", driverToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		bus, err := fleetSvc.GetBus(req.Context(), bus.ID)
		if err != nil {
			t.Fatalf("GetBus() failed: %v", err)
		}
		if bus.Status != fleet.StatusInactive {
			t.Errorf("Status = %q; want %q", bus.Status, fleet.StatusInactive)
		}
	})

	t.Run("no location reported yet", func(t *testing.T) {
		other := testutil.CreateBus(t, fleetRepo, "AV02", "Ngaliema", "Patrice")
		req, rec := newAuthRequest(http.MethodGet, "/v1/fleet/buses/"+other.ID+"/location", heroToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "no location reported for this bus"})}, rec)
	})
}
