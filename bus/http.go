package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/autoconfirm/netguard"
)

// maxPayload caps request and response bodies on the HTTP transport.
const maxPayload int64 = 4 << 20

// HTTPFactory builds handlers that POST the JSON payload to the route's
// endpoint. Endpoints are checked against policy when the route is built.
//
//	router.RegisterTransport("http", bus.HTTPFactory(netguard.Policy{}))
func HTTPFactory(policy netguard.Policy) TransportFactory {
	return func(endpoint string, timeout time.Duration) (Handler, func(), error) {
		if err := policy.Check(endpoint); err != nil {
			return nil, nil, err
		}
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client := &http.Client{Timeout: timeout}

		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("bus/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("bus/http: do request: %w", err)
			}
			defer resp.Body.Close()
			body, err := netguard.ReadLimited(resp.Body, maxPayload)
			if err != nil {
				return nil, fmt.Errorf("bus/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("bus/http: status %d: %s", resp.StatusCode, body)
			}
			return body, nil
		}
		return h, client.CloseIdleConnections, nil
	}
}

// Routes mounts POST /{service} on r. The request body is the payload and
// the reply body is the service's answer. Unknown services answer 404.
func (rt *Router) Routes(r chi.Router) {
	r.Post("/{service}", func(w http.ResponseWriter, req *http.Request) {
		service := chi.URLParam(req, "service")
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxPayload))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := rt.Call(req.Context(), service, payload)
		var nf *ErrServiceNotFound
		switch {
		case errors.As(err, &nf):
			writeError(w, http.StatusNotFound, err)
			return
		case err != nil:
			rt.logger.Warn("bus: http call failed", "service", service, "error", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if len(resp) == 0 {
			resp = []byte("null")
		}
		w.Write(resp)
	})
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
