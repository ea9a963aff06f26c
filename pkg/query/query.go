// Package query parses request parameters into a transport-agnostic
// descriptor: filter, sort, pagination position, sparse fields and the
// relationship include list.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
)

// SortKey is one sort field with direction. A leading '-' in the input
// requests descending order.
type SortKey struct {
	Field      string
	Descending bool
}

// Descriptor is the parsed query for one request. Exactly one of
// (Offset,Limit) or page[number]/page[size] determines position; the page
// form takes precedence and is converted to an offset at parse time.
type Descriptor struct {
	Filter  map[string]string
	Sort    []SortKey
	Offset  int
	Limit   int
	Fields  map[string][]string
	Include []string

	// PageSize is non-zero when the page[number]/page[size] form was used;
	// cursors rendered from this descriptor reproduce that form.
	PageSize   int
	PageNumber int
}

// Parse builds a Descriptor from url.Values. maxLimit is the identity-tier
// page-size ceiling; limits are clamped, never rejected.
func Parse(values url.Values, maxLimit int) (Descriptor, error) {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	d := Descriptor{
		Filter: map[string]string{},
		Fields: map[string][]string{},
		Limit:  maxLimit,
	}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if inner, ok := bracketed(key, "filter"); ok {
			d.Filter[inner] = vals[0]
		}
		if inner, ok := bracketed(key, "fields"); ok {
			d.Fields[inner] = splitList(vals[0])
		}
	}

	for _, raw := range splitList(values.Get("sort")) {
		key := SortKey{Field: raw}
		if strings.HasPrefix(raw, "-") {
			key.Field = raw[1:]
			key.Descending = true
		}
		if key.Field == "" {
			return Descriptor{}, apierrors.BadRequest("empty sort field").WithParameter("sort")
		}
		d.Sort = append(d.Sort, key)
	}

	d.Include = splitList(values.Get("include"))

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return Descriptor{}, apierrors.BadRequest("limit must be a non-negative integer").WithParameter("limit")
		}
		d.Limit = limit
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return Descriptor{}, apierrors.BadRequest("offset must be a non-negative integer").WithParameter("offset")
		}
		d.Offset = offset
	}

	pageNumber, hasNumber, err := pageParam(values, "page[number]")
	if err != nil {
		return Descriptor{}, err
	}
	pageSize, hasSize, err := pageParam(values, "page[size]")
	if err != nil {
		return Descriptor{}, err
	}
	if hasNumber || hasSize {
		if pageSize <= 0 {
			pageSize = maxLimit
		}
		if pageNumber <= 0 {
			pageNumber = 1
		}
		d.PageNumber = pageNumber
		d.PageSize = pageSize
		d.Limit = pageSize
		d.Offset = (pageNumber - 1) * pageSize
	}

	if d.Limit > maxLimit {
		d.Limit = maxLimit
	}
	return d, nil
}

func pageParam(values url.Values, name string) (int, bool, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false, apierrors.BadRequest(name + " must be a positive integer").WithParameter(name)
	}
	return n, true, nil
}

func bracketed(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	inner := key[len(prefix)+1 : len(key)-1]
	if inner == "" {
		return "", false
	}
	return inner, true
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
