package chi

import (
	"net/url"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/search/request"
)

// Query parameter names outside the filter keys.
const (
	paramPage      = "page"
	paramPageSize  = "page_size"
	paramAge       = "age"
	paramSex       = "sex"
	paramCountry   = "country"
	paramLimit     = "limit"
	paramCondition = "condition"
)

// MatchParams are the query parameters of GET /api/v1/match.
type MatchParams struct {
	Age       int
	Sex       string
	Condition string
	Country   *string
	Limit     *int
}

// guard rejects any query parameter outside allowed before binding.
func guard(q url.Values, allowed ...string) error {
	known := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		known[name] = struct{}{}
	}
	for name := range q {
		if _, ok := known[name]; !ok {
			return &domain.InjectionGuardViolation{Key: name}
		}
	}
	return nil
}

// bind binds one form-style exploded query parameter.
func bind(q url.Values, name string, required bool, dest any) error {
	if err := runtime.BindQueryParameter("form", true, required, name, q, dest); err != nil {
		return domain.NewValidationError(name, "invalid value: %v", err)
	}
	return nil
}

// parseFilterQuery builds the predicate set from the query string. Keys outside the
// filter set are rejected by filter.New.
func parseFilterQuery(q url.Values) (filter.Set, error) {
	return filter.New(q)
}

func parseSearchQuery(q url.Values) (request.Request, error) {
	filters := make(url.Values, len(q))
	paging := make(url.Values, 2)
	for name, values := range q {
		switch name {
		case paramPage, paramPageSize:
			paging[name] = values
		default:
			filters[name] = values
		}
	}

	set, err := filter.New(filters)
	if err != nil {
		return request.Request{}, err
	}
	var pageParam, sizeParam *int
	if err := bind(paging, paramPage, false, &pageParam); err != nil {
		return request.Request{}, err
	}
	if err := bind(paging, paramPageSize, false, &sizeParam); err != nil {
		return request.Request{}, err
	}

	page, size := request.DefaultPage, request.DefaultPageSize
	if pageParam != nil {
		page = *pageParam
	}
	if sizeParam != nil {
		size = *sizeParam
	}
	return request.New(set, page, size)
}

func parseMatchQuery(q url.Values) (MatchParams, error) {
	if err := guard(q, paramAge, paramSex, paramCondition, paramCountry, paramLimit); err != nil {
		return MatchParams{}, err
	}
	var p MatchParams
	if err := bind(q, paramAge, true, &p.Age); err != nil {
		return MatchParams{}, err
	}
	if err := bind(q, paramSex, true, &p.Sex); err != nil {
		return MatchParams{}, err
	}
	if err := bind(q, paramCondition, true, &p.Condition); err != nil {
		return MatchParams{}, err
	}
	if err := bind(q, paramCountry, false, &p.Country); err != nil {
		return MatchParams{}, err
	}
	if err := bind(q, paramLimit, false, &p.Limit); err != nil {
		return MatchParams{}, err
	}
	return p, nil
}
