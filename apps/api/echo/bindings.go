package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

const orderingParam = "ordering"

// bindOrderings parses "?ordering=name,-createdAt" into DB orderings; a leading "-" sorts descending.
func bindOrderings(ctx echo.Context) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

type userQuery struct {
	Role  string `query:"role"`
	Page  int    `query:"page"`
	Limit int    `query:"limit"`
}

func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	var q userQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &q); err != nil {
		return user.QueryFilter{}, errors.Wrap(err, "binding to userQuery")
	}
	return user.QueryFilter{
		Role:      user.Role(strings.TrimSpace(q.Role)),
		Page:      core.Page{Number: q.Page, Size: q.Limit},
		Orderings: bindOrderings(ctx),
	}, nil
}
