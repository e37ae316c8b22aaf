package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/fleet"
)

type fleetApi struct {
	svc      *fleet.Service
	validate *validator.Validate
}

func registerFleetAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := fleetApi{
		svc:      deps.FleetSvc,
		validate: deps.Validate,
	}

	fg := g.Group("/fleet", jwt)

	bg := fg.Group("/buses")
	bg.POST("", api.createBus, adminMiddleware())
	bg.GET("", api.queryBuses)
	bg.GET("/:id", api.retrieveBus)
	bg.PUT("/:id", api.updateBus, adminMiddleware())
	bg.DELETE("/:id", api.destroyBus, adminMiddleware())

	// live location
	bg.POST("/:id/location", api.postLocation, driverOrAdminMiddleware())
	bg.GET("/:id/location", api.retrieveLocation)
	bg.DELETE("/:id/location", api.stopSharing, driverOrAdminMiddleware())

	fg.GET("/locations", api.querySharedLocations)
}

// Buses

func (api *fleetApi) createBus(ctx echo.Context) error {
	var data fleet.NewBus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	bus, err := api.svc.CreateBus(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, bus)
}

func (api *fleetApi) queryBuses(ctx echo.Context) error {
	filter := new(fleet.BusQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []fleet.Bus{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	buses, err := api.svc.QueryBuses(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying buses")
	}
	if buses == nil {
		buses = []fleet.Bus{}
	}
	return ctx.JSON(http.StatusOK, buses)
}

func (api *fleetApi) retrieveBus(ctx echo.Context) error {
	bus, err := api.svc.GetBus(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, bus)
}

func (api *fleetApi) updateBus(ctx echo.Context) error {
	var data fleet.UpdateBus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	bus, err := api.svc.UpdateBus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, bus)
}

func (api *fleetApi) destroyBus(ctx echo.Context) error {
	if err := api.svc.DeleteBus(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Live location

const actionToggleSharing = "toggleSharing"

// LocationRequest is either a position report or a sharing action.
type LocationRequest struct {
	Action string `json:"action"`
	fleet.LocationReport
}

func (api *fleetApi) postLocation(ctx echo.Context) error {
	var data LocationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LocationRequest")
	}

	if data.Action == actionToggleSharing {
		status, err := api.svc.ToggleSharing(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, status)
	}

	if err := data.LocationReport.Validate(api.validate); err != nil {
		return err
	}
	if data.DriverID == "" {
		if claims, err := getContextClaims(ctx); err == nil {
			data.DriverID = claims.Subject
			if data.DriverName == "" {
				data.DriverName = claims.Username
			}
		}
	}
	status, err := api.svc.ReportLocation(ctx.Request().Context(), ctx.Param("id"), data.LocationReport)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *fleetApi) retrieveLocation(ctx echo.Context) error {
	status, err := api.svc.GetLocation(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *fleetApi) stopSharing(ctx echo.Context) error {
	status, err := api.svc.StopSharing(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *fleetApi) querySharedLocations(ctx echo.Context) error {
	statuses, err := api.svc.QuerySharedLocations(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying shared locations")
	}
	if statuses == nil {
		statuses = []fleet.LocationStatus{}
	}
	return ctx.JSON(http.StatusOK, statuses)
}
