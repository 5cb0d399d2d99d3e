package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/queries>; rel="queries"`,
		`</api/v1/tweets>; rel="tweets"`,
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/styles>; rel="styles"`,
	},
	"/api/v1/queries": {
		`</api/v1/tweets>; rel="tweets"`,
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/queries/{id}": {
		`</api/v1/queries>; rel="collection"`,
	},
	"/api/v1/queries/{id}/tweets": {
		`</api/v1/queries>; rel="collection"`,
	},
	"/api/v1/queries/{id}/features": {
		`</api/v1/queries>; rel="collection"`,
	},
	"/api/v1/tweets": {
		`</api/v1/queries>; rel="queries"`,
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/features": {
		`</api/v1/styles>; rel="styles"`,
		`</api/v1/queries>; rel="queries"`,
	},
	"/api/v1/styles": {
		`</api/v1/encoding>; rel="encoding"`,
		`</api/v1/features>; rel="features"`,
	},
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
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		// State-dependent action links from response body.
		if a, ok := v.(humastar.Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}
