package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/humastar"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/service"
)

// QueryBody is a query record with its action links.
type QueryBody struct {
	query.Query
}

var queryActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/queries/%s", Method: "PUT", Title: "Edit query"},
	{Rel: "delete", Pattern: "/api/v1/queries/%s", Method: "DELETE", Title: "Remove query"},
	{Rel: "tweets", Pattern: "/api/v1/queries/%s/tweets", Method: "GET"},
	{Rel: "features", Pattern: "/api/v1/queries/%s/features", Method: "GET"},
}

func (b QueryBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, queryActions)
}

type QueryOutput struct {
	Body QueryBody
}

type QueriesOutput struct {
	Body []query.Query
}

type TweetsOutput struct {
	Body []query.Tweet
}

// RegisterQueries registers query listing and management routes.
func (h *APIHandler) RegisterQueries(api huma.API) {
	huma.Get(api, "/api/v1/queries", h.ListQueries, huma.OperationTags("queries"))
	huma.Post(api, "/api/v1/queries", h.CreateQuery, huma.OperationTags("queries"))
	huma.Get(api, "/api/v1/queries/{id}", h.GetQuery, huma.OperationTags("queries"))
	huma.Put(api, "/api/v1/queries/{id}", h.PutQuery, huma.OperationTags("queries"))
	huma.Delete(api, "/api/v1/queries/{id}", h.DeleteQuery, huma.OperationTags("queries"))
}

// RegisterTweets registers top tweet routes.
func (h *APIHandler) RegisterTweets(api huma.API) {
	huma.Get(api, "/api/v1/tweets", h.ListTweets, huma.OperationTags("tweets"))
	huma.Get(api, "/api/v1/queries/{id}/tweets", h.ListQueryTweets, huma.OperationTags("tweets"))
}

func (h *APIHandler) ListQueries(ctx context.Context, input *struct{}) (*QueriesOutput, error) {
	qs, err := h.svc.Backend.ActiveQueries(ctx)
	if err != nil {
		return nil, backendError(err, "queries")
	}
	if qs == nil {
		qs = []query.Query{}
	}
	return &QueriesOutput{Body: qs}, nil
}

func (h *APIHandler) GetQuery(ctx context.Context, input *IDInput) (*QueryOutput, error) {
	q, err := h.svc.Backend.Query(ctx, input.ID)
	if err != nil {
		return nil, backendError(err, "query")
	}
	return &QueryOutput{Body: QueryBody{q}}, nil
}

func (h *APIHandler) CreateQuery(ctx context.Context, input *struct{ Body query.Query }) (*QueryOutput, error) {
	if err := RequireSession(ctx); err != nil {
		return nil, err
	}
	q := input.Body
	q.ID = ""
	if err := q.Validate(); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	created, err := h.svc.Backend.CreateQuery(ctx, q)
	if err != nil {
		return nil, backendError(err, "query")
	}
	h.publish(service.ResourceQueries, service.ActionCreated, created.ID)
	return &QueryOutput{Body: QueryBody{created}}, nil
}

func (h *APIHandler) PutQuery(ctx context.Context, input *struct {
	IDInput
	Body query.Query
}) (*QueryOutput, error) {
	if err := RequireSession(ctx); err != nil {
		return nil, err
	}
	q := input.Body
	q.ID = input.ID
	if err := q.Validate(); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	updated, err := h.svc.Backend.UpdateQuery(ctx, q)
	if err != nil {
		return nil, backendError(err, "query")
	}
	h.publish(service.ResourceQueries, service.ActionUpdated, updated.ID)
	return &QueryOutput{Body: QueryBody{updated}}, nil
}

func (h *APIHandler) DeleteQuery(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := RequireSession(ctx); err != nil {
		return nil, err
	}
	if err := h.svc.Backend.RemoveQuery(ctx, input.ID); err != nil {
		return nil, backendError(err, "query")
	}
	h.publish(service.ResourceQueries, service.ActionDeleted, input.ID)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Query removed"}}, nil
}

func (h *APIHandler) ListTweets(ctx context.Context, input *LimitInput) (*TweetsOutput, error) {
	tweets, err := h.svc.Backend.ActiveTweets(ctx, limitOrDefault(input.Limit))
	if err != nil {
		return nil, backendError(err, "tweets")
	}
	return &TweetsOutput{Body: nonNil(tweets)}, nil
}

func (h *APIHandler) ListQueryTweets(ctx context.Context, input *struct {
	IDInput
	LimitInput
}) (*TweetsOutput, error) {
	tweets, err := h.svc.Backend.QueryTweets(ctx, input.ID, limitOrDefault(input.Limit))
	if err != nil {
		return nil, backendError(err, "query")
	}
	return &TweetsOutput{Body: nonNil(tweets)}, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return backend.DefaultTweetLimit
	}
	return n
}

func nonNil(t []query.Tweet) []query.Tweet {
	if t == nil {
		return []query.Tweet{}
	}
	return t
}
