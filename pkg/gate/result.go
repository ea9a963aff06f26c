package gate

import "github.com/FuelRats/api.fuelrats.com-sub000/pkg/jsonapi"

type resultKind int

const (
	kindNoContent resultKind = iota
	kindDocument
	kindRaw
)

// Result is the tagged handler return variant: no content, a rendered
// document, or a raw body passed through untouched. There is no runtime
// shape inspection anywhere in the pipeline.
type Result struct {
	kind        resultKind
	status      int
	doc         *jsonapi.Document
	raw         []byte
	contentType string
}

func NoContent() Result {
	return Result{kind: kindNoContent, status: 204}
}

func Doc(status int, doc *jsonapi.Document) Result {
	return Result{kind: kindDocument, status: status, doc: doc}
}

func Raw(status int, contentType string, body []byte) Result {
	return Result{kind: kindRaw, status: status, raw: body, contentType: contentType}
}

// Handler is the collaborator contract: it receives a request context and
// returns a tagged result or a typed error.
type Handler func(c *Context) (Result, error)
