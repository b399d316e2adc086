package headless

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// networkSetup enables the network domain and applies the user-agent
// override before navigation.
func networkSetup(cfg Config) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// watchDocumentStatus records the HTTP status of the main document
// response, so sessions that land on an error page fail with the
// status instead of a bare wait timeout.
func watchDocumentStatus(ctx context.Context, status *atomic.Int64) {
	chromedp.ListenTarget(ctx, documentStatus(status))
}

func documentStatus(status *atomic.Int64) func(ev any) {
	return func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
			return
		}
		status.Store(resp.Response.Status)
	}
}
