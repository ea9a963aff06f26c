// Package jsonapi renders handler results into standard response envelopes:
// individual, collection, relationship and meta-only views plus error
// documents. Every view carries a links.self cursor and a jsonapi info
// block; error documents never carry data, pagination or included
// resources.
package jsonapi

import (
	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
)

const Version = "1.0"

type Info struct {
	Version string `json:"version"`
}

type Links struct {
	Self  string  `json:"self"`
	First *string `json:"first,omitempty"`
	Prev  *string `json:"prev,omitempty"`
	Next  *string `json:"next,omitempty"`
	Last  *string `json:"last,omitempty"`
}

type Meta map[string]any

// Linkage is a (type, id) reference used in relationship views and resource
// relationship blocks.
type Linkage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type RelationshipData struct {
	Data []Linkage `json:"data"`
}

// Resource is the wire form of one entity.
type Resource struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id"`
	Attributes    map[string]any              `json:"attributes,omitempty"`
	Relationships map[string]RelationshipData `json:"relationships,omitempty"`
}

type Document struct {
	Data     any                    `json:"data,omitempty"`
	Errors   []*apierrors.APIError  `json:"errors,omitempty"`
	Included []Resource             `json:"included,omitempty"`
	Links    *Links                 `json:"links,omitempty"`
	Meta     Meta                   `json:"meta,omitempty"`
	JSONAPI  Info                   `json:"jsonapi"`
}

// Status is the HTTP-style status of the document: the status of the first
// error, or fallback for success documents.
func (d *Document) Status(fallback int) int {
	if len(d.Errors) > 0 {
		return d.Errors[0].Status
	}
	return fallback
}

// Errors builds an error document. The self link is kept so every view,
// error or not, is addressable.
func Errors(selfURL string, errs ...*apierrors.APIError) *Document {
	return &Document{
		Errors:  errs,
		Links:   &Links{Self: selfURL},
		JSONAPI: Info{Version: Version},
	}
}
