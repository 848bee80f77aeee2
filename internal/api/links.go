package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sat/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/indicators>; rel="indicators"`,
		`</api/v1/search>; rel="search"`,
		`</api/v1/exports>; rel="exports"`,
		`</api/v1/capabilities>; rel="capabilities"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	},
	"/api/v1/info": {
		`</health>; rel="up"`,
		`</api/v1/indicators>; rel="indicators"`,
	},
	"/api/v1/indicators": {
		`</health>; rel="up"`,
		`</api/v1/indicators/{id}>; rel="item"`,
		`</api/v1/capabilities>; rel="capabilities"`,
	},
	"/api/v1/indicators/{id}": {
		`</api/v1/indicators>; rel="collection"`,
	},
	"/api/v1/indicators/{id}/overlay": {
		`</api/v1/indicators>; rel="collection"`,
	},
	"/api/v1/search": {
		`</health>; rel="up"`,
	},
	"/api/v1/exports": {
		`</health>; rel="up"`,
		`</api/v1/aoi/export>; rel="create-form"`,
	},
	"/api/v1/capabilities": {
		`</api/v1/indicators>; rel="indicators"`,
	},
}

// RootLinks returns the Link headers of the entry point, for use by
// non-Huma handlers.
func RootLinks() []string {
	return links["/health"]
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") && !strings.HasPrefix(op.Path, "/api/v1/viewer/") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(humastar.Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}
