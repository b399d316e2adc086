package headless

import (
	"sync/atomic"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestDocumentStatusRecordsMainDocument(t *testing.T) {
	t.Parallel()

	var status atomic.Int64
	handle := documentStatus(&status)

	handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503},
	})
	if got := status.Load(); got != 503 {
		t.Fatalf("status = %d, want 503", got)
	}

	// A later document response, e.g. after a redirect, wins.
	handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	if got := status.Load(); got != 200 {
		t.Fatalf("status = %d, want 200", got)
	}
}

func TestDocumentStatusIgnoresSubresources(t *testing.T) {
	t.Parallel()

	var status atomic.Int64
	handle := documentStatus(&status)

	handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeXHR,
		Response: &network.Response{Status: 404},
	})
	handle(&network.EventResponseReceived{Type: network.ResourceTypeDocument})
	handle(&network.EventLoadingFinished{})

	if got := status.Load(); got != 0 {
		t.Fatalf("status = %d, want 0", got)
	}
}
