package server

import (
	"net/url"
	"strings"

	"github.com/asaidimu/go-tabula/core/view"
)

// Query parameters selecting the sort.
const (
	sortParam      = "sort"
	directionParam = "dir"
)

// StateFromQuery binds query parameters to the view's rules. A filter rule
// reads the parameter of the same name; range rules read <name>_min and
// <name>_max instead. Parameters naming no rule are ignored.
func StateFromQuery(rules view.Definition, q url.Values) view.ViewState {
	state := view.NewViewState()
	for _, rule := range rules.Filters {
		switch rule.Kind {
		case view.FilterNumericRange, view.FilterDateRange:
			lo, hasLo := q[rule.Name+"_min"]
			hi, hasHi := q[rule.Name+"_max"]
			if !hasLo && !hasHi {
				continue
			}
			state = state.WithRange(rule.Name, first(lo), first(hi))
		default:
			if values, ok := q[rule.Name]; ok {
				state = state.With(rule.Name, first(values))
			}
		}
	}
	if sort := q.Get(sortParam); sort != "" {
		state = state.SortBy(sort, view.SortDirection(strings.ToLower(q.Get(directionParam))))
	} else if dir := q.Get(directionParam); dir != "" {
		state.Direction = view.SortDirection(strings.ToLower(dir))
	}
	return state
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
