// Optional JS-rendered fetch for projects with RenderJS enabled, using
// chromedp to drive a headless Chrome instance. No usage example for this
// library exists elsewhere in the retrieved corpus (only its go.mod
// presence), so this wiring follows chromedp's own documented
// NewContext/Run/OuterHTML pattern directly rather than a teacher file —
// see DESIGN.md.
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// renderer renders a page in headless Chrome and returns the post-JS DOM
// as HTML, for sites whose content is not present in the initial response
// body.
type renderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

func newRenderer(parent context.Context) *renderer {
	allocCtx, cancel := chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	return &renderer{allocCtx: allocCtx, cancel: cancel}
}

func (r *renderer) close() {
	r.cancel()
}

// render navigates to target and waits briefly for client-side rendering
// to settle, returning the rendered document's outer HTML.
func (r *renderer) render(ctx context.Context, target string, timeout time.Duration) (string, error) {
	taskCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, timeout)
	defer timeoutCancel()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("crawler: render %q: %w", target, err)
	}
	return html, nil
}
