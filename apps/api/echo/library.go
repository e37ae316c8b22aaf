package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/library"
)

type libraryApi struct {
	svc      *library.Service
	validate *validator.Validate
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := libraryApi{
		svc:      deps.LibrarySvc,
		validate: deps.Validate,
	}

	lg := g.Group("/library", jwt)

	bg := lg.Group("/books")
	bg.POST("", api.createBook, adminMiddleware())
	bg.GET("", api.queryBooks)
	bg.GET("/:id", api.retrieveBook)
	bg.PUT("/:id", api.updateBook, adminMiddleware())
	bg.DELETE("/:id", api.destroyBook, adminMiddleware())

	ldg := lg.Group("/lending")
	ldg.POST("/borrow", api.borrow, adminMiddleware())
	ldg.PUT("/:id/return", api.returnBook, adminMiddleware())
	ldg.GET("", api.queryBorrows)
	ldg.GET("/:id", api.retrieveBorrow)
}

// Books

func (api *libraryApi) createBook(ctx echo.Context) error {
	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.CreateBook(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, book)
}

func (api *libraryApi) queryBooks(ctx echo.Context) error {
	filter := new(library.BookQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Book{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	books, err := api.svc.QueryBooks(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying books")
	}
	if books == nil {
		books = []library.Book{}
	}
	return ctx.JSON(http.StatusOK, books)
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	book, err := api.svc.GetBook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) updateBook(ctx echo.Context) error {
	var data library.UpdateBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.UpdateBook(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) destroyBook(ctx echo.Context) error {
	if err := api.svc.DeleteBook(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lending

type ReturnResponse struct {
	Record  library.BorrowRecord `json:"record"`
	Message string               `json:"message"`
}

func (api *libraryApi) borrow(ctx echo.Context) error {
	var data library.NewBorrow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBorrow")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Borrow(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *libraryApi) returnBook(ctx echo.Context) error {
	rec, msg, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReturnResponse{Record: rec, Message: msg})
}

func (api *libraryApi) queryBorrows(ctx echo.Context) error {
	filter := new(library.BorrowQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.BorrowRecord{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	recs, err := api.svc.QueryBorrows(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying borrow records")
	}
	if recs == nil {
		recs = []library.BorrowRecord{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *libraryApi) retrieveBorrow(ctx echo.Context) error {
	rec, err := api.svc.GetBorrow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}
