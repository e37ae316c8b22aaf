package fleet

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// BusStatus tells whether a bus is currently in service.
type BusStatus string

const (
	StatusActive   BusStatus = "ACTIVE"
	StatusInactive BusStatus = "INACTIVE"
)

type Bus struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"` // fleet number, e.g. "AV01"
	DriverName  string    `json:"driver_name"`
	DriverPhone string    `json:"driver_phone"`
	Route       string    `json:"route"`
	CurrentLat  float64   `json:"current_lat"`
	CurrentLng  float64   `json:"current_lng"`
	Speed       float64   `json:"speed"` // km/h
	Status      BusStatus `json:"status"`
	LastUpdate  null.Time `json:"last_update"` // UTC; unset until the first location report
	CreatedAt   time.Time `json:"created_at"`  // UTC
	UpdatedAt   time.Time `json:"updated_at"`  // UTC
}

// BusLocation holds the authoritative live position of a Bus; one row per
// bus, overwritten by every report (no history is kept).
type BusLocation struct {
	BusID       string       `json:"bus_id"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Speed       float64      `json:"speed"` // km/h
	Heading     null.Float64 `json:"heading"`
	Accuracy    null.Float64 `json:"accuracy"`
	IsSharing   bool         `json:"is_sharing"`
	DriverID    null.String  `json:"driver_id"`
	DriverName  string       `json:"driver_name"`
	LastUpdated time.Time    `json:"last_updated"` // UTC; monotonically non-decreasing per bus
}

// LocationStatus is a BusLocation plus its read-time staleness flag.
// Staleness is derived, never persisted.
type LocationStatus struct {
	BusLocation
	IsStale bool `json:"is_stale"`
}

// NewBus contains information needed to register a new Bus.
type NewBus struct {
	Number      string `json:"number" validate:"required,alphanum_"`
	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone" validate:"omitempty,phone_"`
	Route       string `json:"route"`
}

func (nb *NewBus) Validate(validate *validator.Validate) error {
	nb.Number = core.CleanString(nb.Number)
	nb.DriverName = core.CleanString(nb.DriverName)
	nb.DriverPhone = core.CleanString(nb.DriverPhone)
	nb.Route = core.CleanString(nb.Route)
	return validate.Struct(nb)
}

// UpdateBus defines what information may be provided to modify an existing Bus.
type UpdateBus struct {
	Number      string `json:"number" validate:"omitempty,alphanum_"`
	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone" validate:"omitempty,phone_"`
	Route       string `json:"route"`
}

func (ub *UpdateBus) Validate(validate *validator.Validate) error {
	ub.Number = core.CleanString(ub.Number)
	ub.DriverName = core.CleanString(ub.DriverName)
	ub.DriverPhone = core.CleanString(ub.DriverPhone)
	ub.Route = core.CleanString(ub.Route)
	return validate.Struct(ub)
}

// LocationReport is a live position report from a bus device.
// Latitude and Longitude use pointers so a genuine 0.0 reading survives
// the required check.
type LocationReport struct {
	Latitude   *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Speed      *float64 `json:"speed" validate:"omitempty,gte=0"`
	Heading    *float64 `json:"heading" validate:"omitempty,gte=0,lt=360"`
	Accuracy   *float64 `json:"accuracy" validate:"omitempty,gte=0"`
	DriverID   string   `json:"driver_id"`
	DriverName string   `json:"driver_name"`
}

func (lr *LocationReport) Validate(validate *validator.Validate) error {
	lr.DriverID = core.CleanString(lr.DriverID)
	lr.DriverName = core.CleanString(lr.DriverName)
	return validate.Struct(lr)
}

type BusQueryFilter struct {
	Search string    `query:"search"` // matches Number, Route or DriverName
	Status BusStatus `query:"status"`
}

func (qf *BusQueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == ""
}

func (qf *BusQueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
