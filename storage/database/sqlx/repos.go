// Package sqlxrepos implements the domain repositories on postgres,
// with goqu building the SQL and sqlx scanning the rows.
package sqlxrepos

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/trezcool/shule/core"
)

var dialect = goqu.Dialect("postgres")

// getExec picks the service-provided executor (a transaction) over the
// repository's own handle.
func getExec(dflt core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return dflt
}

func orderingExprs(ordering []core.DBOrdering, dflt ...exp.OrderedExpression) []exp.OrderedExpression {
	if len(ordering) == 0 {
		return dflt
	}
	exprs := make([]exp.OrderedExpression, 0, len(ordering))
	for _, ord := range ordering {
		if ord.Ascending {
			exprs = append(exprs, goqu.C(ord.Field).Asc())
		} else {
			exprs = append(exprs, goqu.C(ord.Field).Desc())
		}
	}
	return exprs
}
