package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

var errDeleteSelf = core.NewForbiddenError("you cannot delete your own account")

type userApi struct {
	svc *user.Service
}

func userNotFound(id string) error {
	return core.NewNotFoundError(fmt.Sprintf("User with ID %s not found", id))
}

// notFoundAs replaces user.ErrNotFound with a message naming the requested id.
func notFoundAs(err error, id string) error {
	if errors.Cause(err) == user.ErrNotFound {
		return userNotFound(id)
	}
	return err
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id := ctx.Param("id")
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return notFoundAs(err, id)
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	id := ctx.Param("id")
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	usr, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return notFoundAs(err, id)
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if caller, ok := contextIdentity(ctx); ok && caller.UserID == id {
		return errDeleteSelf
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return notFoundAs(err, id)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": fmt.Sprintf("User with ID %s has been deleted successfully", id)})
}
