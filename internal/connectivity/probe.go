package connectivity

import (
	"context"
	"net/http"
	"time"
)

// HTTPProbe treats the remote as reachable when any HTTP response arrives.
// Status codes are ignored: a 401 still proves the network path works.
type HTTPProbe struct {
	Client  *http.Client
	URL     string
	Timeout time.Duration
}

// Online implements Probe.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
