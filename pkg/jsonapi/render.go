package jsonapi

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/query"
)

// Individual renders a single-resource view.
func Individual(t Type, entity any, desc query.Descriptor, selfURL string) *Document {
	doc := &Document{
		Data:    t.resource(entity, desc.Fields),
		Links:   &Links{Self: selfURL},
		JSONAPI: Info{Version: Version},
	}
	doc.Included = gatherIncluded(t, []any{entity}, desc.Include)
	return doc
}

// Collection renders a paginated collection view with stable cursors.
func Collection(t Type, rows []any, totalCount int, desc query.Descriptor, selfURL string) *Document {
	resources := make([]Resource, 0, len(rows))
	for _, row := range rows {
		resources = append(resources, t.resource(row, desc.Fields))
	}
	pg := paginate(desc.Offset, desc.Limit, totalCount)
	links := &Links{Self: selfURL}
	first := 1
	links.First = cursor(selfURL, desc.Limit, &first)
	links.Last = cursor(selfURL, desc.Limit, &pg.last)
	links.Prev = cursor(selfURL, desc.Limit, pg.prev)
	links.Next = cursor(selfURL, desc.Limit, pg.next)

	meta := Meta{
		"total":       totalCount,
		"currentPage": pg.current,
		"lastPage":    pg.last,
		"limit":       desc.Limit,
		"offset":      desc.Offset,
	}
	if pg.prev != nil {
		meta["previousPage"] = *pg.prev
	}
	if pg.next != nil {
		meta["nextPage"] = *pg.next
	}

	return &Document{
		Data:     resources,
		Included: gatherIncluded(t, rows, desc.Include),
		Links:    links,
		Meta:     meta,
		JSONAPI:  Info{Version: Version},
	}
}

// RelationshipView renders the linkage of one named relationship.
func RelationshipView(t Type, entity any, relName, selfURL string) (*Document, error) {
	for _, rel := range t.Relationships {
		if rel.Name != relName {
			continue
		}
		related := rel.Related(entity)
		linkage := make([]Linkage, 0, len(related))
		for _, r := range related {
			linkage = append(linkage, Linkage{Type: r.Type, ID: r.ID})
		}
		return &Document{
			Data:    linkage,
			Links:   &Links{Self: selfURL},
			JSONAPI: Info{Version: Version},
		}, nil
	}
	return nil, apierrors.NotFound(fmt.Sprintf("no relationship %q on %q", relName, t.Name))
}

// MetaOnly renders a document carrying only metadata.
func MetaOnly(meta Meta, selfURL string) *Document {
	return &Document{
		Meta:    meta,
		Links:   &Links{Self: selfURL},
		JSONAPI: Info{Version: Version},
	}
}

type pagination struct {
	current int
	last    int
	prev    *int
	next    *int
}

// paginate applies the collection page math. Out-of-range pages never error:
// a request past the end clamps previousPage to lastPage and renders an
// empty data array.
func paginate(offset, limit, total int) pagination {
	current := 1
	if limit > 0 {
		current = offset/limit + 1
	}
	last := 1
	if total > 0 && limit > 0 {
		last = (total + limit - 1) / limit
	}
	pg := pagination{current: current, last: last}
	switch {
	case current > last:
		clamped := last
		pg.prev = &clamped
	case current > 1:
		prev := current - 1
		pg.prev = &prev
	}
	if current < last {
		next := current + 1
		pg.next = &next
	}
	return pg
}

// cursor appends the page form to the collection's canonical self URL. The
// caller's own pagination parameters are stripped first: a cursor carries
// exactly one page form, so following it always lands on the page it names.
// An absent page yields an absent link, never a malformed one.
func cursor(selfURL string, limit int, page *int) *string {
	if page == nil {
		return nil
	}
	base := stripPagination(selfURL)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	link := fmt.Sprintf("%s%spage[size]=%d&page[number]=%d", base, sep, limit, *page)
	return &link
}

// stripPagination drops the request's pagination parameters (both the page
// form and the offset/limit form) while preserving the order and encoding
// of everything else.
func stripPagination(selfURL string) string {
	path, rawQuery, found := strings.Cut(selfURL, "?")
	if !found {
		return selfURL
	}
	var kept []string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		switch key {
		case "page[size]", "page[number]", "limit", "offset":
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return path
	}
	return path + "?" + strings.Join(kept, "&")
}

// gatherIncluded collects the directly related resources of every primary
// entity for the requested include set, deduplicated by (type, id).
func gatherIncluded(t Type, entities []any, include []string) []Resource {
	if len(include) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(include))
	for _, name := range include {
		wanted[name] = struct{}{}
	}
	seen := map[Linkage]struct{}{}
	var out []Resource
	for _, entity := range entities {
		for _, rel := range t.Relationships {
			if _, ok := wanted[rel.Name]; !ok {
				continue
			}
			for _, related := range rel.Related(entity) {
				key := Linkage{Type: related.Type, ID: related.ID}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, related)
			}
		}
	}
	return out
}
