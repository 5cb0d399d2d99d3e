package editor

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/humastar"
	"github.com/joeblew999/plat-tweetmap/internal/service"
)

// keepAlive is how often an open stream marks its page as seen, so a tab
// left idle on the overview is not swept.
var keepAlive = time.Minute

// Events streams query changes to the overview page of one view. Each
// change reloads that view's overview and re-renders it.
func (h *DashboardHandler) Events(ctx context.Context, input *ViewInput) (*huma.StreamResponse, error) {
	if _, err := h.page(input.View); err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		tick := time.NewTicker(keepAlive)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				h.views.Page(input.View)
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceQueries {
					continue
				}
				p, err := h.views.Page(input.View)
				if err != nil {
					return
				}
				p.Active.Refresh(ctx)
				h.renderActive(sse, p.Active.Snapshot())
				sse.DispatchCustomEvent("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}
