// Package transport delivers motion commands to the vehicle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/rover.control/internal/httputil"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/motion"
)

// DefaultBaseURL is the vehicle's access-point address.
const DefaultBaseURL = "http://192.168.4.1"

// DefaultTimeout bounds a single send.
const DefaultTimeout = 2 * time.Second

// ErrNoBaseURL is returned by NewHTTPTransport when no vehicle address is set.
var ErrNoBaseURL = errors.New("transport: base URL is required")

// Ack describes a completed send.
type Ack struct {
	Endpoint   string
	StatusCode int
	Latency    time.Duration
}

// Transport sends one command to the vehicle. Implementations must be safe
// for concurrent use.
type Transport interface {
	Send(ctx context.Context, cmd motion.MotionCommand) (Ack, error)
}

// TransportError is returned when the vehicle could not be reached or
// answered with a non-2xx status.
type TransportError struct {
	Channel    motion.Channel
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send %s to %s: %v", e.Channel, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("send %s to %s: status %d", e.Channel, e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Payload is the JSON body posted to the vehicle.
type Payload struct {
	Direction string `json:"direction"`
	Speed     int    `json:"speed"`
}

// PayloadFor returns the wire body for cmd.
func PayloadFor(cmd motion.MotionCommand) Payload {
	return Payload{Direction: cmd.Action(), Speed: cmd.Speed}
}

// HTTPTransport posts commands as JSON to the vehicle's HTTP endpoints.
type HTTPTransport struct {
	baseURL string
	client  httputil.HTTPClient
}

// NewHTTPTransport returns a transport rooted at baseURL. A nil client gets
// a StandardClient with DefaultTimeout.
func NewHTTPTransport(baseURL string, client httputil.HTTPClient) (*HTTPTransport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if client == nil {
		client = httputil.NewStandardClient(nil, DefaultTimeout)
	}
	return &HTTPTransport{baseURL: baseURL, client: client}, nil
}

// BaseURL returns the vehicle address commands are sent to.
func (t *HTTPTransport) BaseURL() string { return t.baseURL }

// Send posts cmd to the endpoint for its channel.
func (t *HTTPTransport) Send(ctx context.Context, cmd motion.MotionCommand) (Ack, error) {
	endpoint := t.baseURL + cmd.Channel.Endpoint()
	start := time.Now()

	status, err := httputil.PostJSON(ctx, t.client, endpoint, PayloadFor(cmd))
	ack := Ack{Endpoint: endpoint, StatusCode: status, Latency: time.Since(start)}
	if err != nil {
		return ack, &TransportError{Channel: cmd.Channel, Endpoint: endpoint, Err: err}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ack, &TransportError{Channel: cmd.Channel, Endpoint: endpoint, StatusCode: status}
	}

	monitoring.Tracef("sent %s -> %s (%d, %s)", cmd, endpoint, status, ack.Latency)
	return ack, nil
}
