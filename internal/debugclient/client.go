// Package debugclient connects to the /debug namespace of a botgraph
// gateway. It is used by the botgraph-debug observer CLI.
package debugclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/gateway"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// ErrRejected is returned when the gateway acknowledges a command with an
// error.
var ErrRejected = errors.New("command rejected")

// Options configures Dial.
type Options struct {
	URL                string
	InsecureSkipVerify bool
	// ConnectTimeout defaults to 15s.
	ConnectTimeout time.Duration
}

// Client is a connected debug observer.
type Client struct {
	io *socket.Socket
}

// Dial connects to the gateway's /debug namespace over websocket.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(gateway.DebugNamespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to debug namespace.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("connect error: %v", errs[0])
		}
		connectChan <- err
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Client{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(opts.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", opts.ConnectTimeout)
	}
}

// Close disconnects the client.
func (c *Client) Close() {
	c.io.Disconnect()
}

// ack is the acknowledgement envelope sent by the gateway.
type ack struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Error  string `json:"error"`
}

// Do sends a command and waits for its acknowledgement. The result is the
// plain decoded value of the ack's result field.
func (c *Client) Do(ctx context.Context, cmd string, req gateway.Request) (any, error) {
	payload, err := toPlain(req)
	if err != nil {
		return nil, err
	}

	done := make(chan ack, 1)
	errc := make(chan error, 1)
	callback := sio.Ack(func(args []any, err error) {
		if err != nil {
			errc <- err
			return
		}
		var res ack
		if len(args) == 0 {
			errc <- errors.New("empty acknowledgement")
			return
		}
		if err := convert(args[0], &res); err != nil {
			errc <- err
			return
		}
		done <- res
	})
	if err := c.io.Emit(cmd, payload, callback); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	select {
	case res := <-done:
		if !res.OK {
			return nil, fmt.Errorf("%w: %s", ErrRejected, res.Error)
		}
		return res.Result, nil
	case err := <-errc:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch attaches to the owner's debug session on graphID when both are set
// and, when ownerID is set, subscribes to the owner's telemetry. Every
// received event is passed to fn with its name ("debug" or "telemetry").
// It blocks until ctx is done.
func (c *Client) Watch(ctx context.Context, graphID, ownerID string, fn func(event string, payload any)) error {
	c.io.On(types.EventName("debug"), func(args ...any) {
		if len(args) > 0 {
			fn("debug", args[0])
		}
	})
	c.io.On(types.EventName("telemetry"), func(args ...any) {
		if len(args) > 0 {
			fn("telemetry", args[0])
		}
	})

	if graphID != "" && ownerID != "" {
		res, err := c.Do(ctx, "attach", gateway.Request{OwnerID: ownerID, GraphID: graphID})
		if err != nil {
			return err
		}
		if m, ok := res.(map[string]any); ok && m["paused"] != nil {
			fn("debug", map[string]any{"type": "paused", "ownerId": ownerID, "graphId": graphID, "pause": m["paused"]})
		}
	}
	if ownerID != "" {
		if _, err := c.Do(ctx, "subscribe", gateway.Request{OwnerID: ownerID}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// ParseArgs builds a Request from key=value pairs. overrides.<name>=<json>
// entries fill Overrides; override values that are not valid JSON are kept
// as strings.
func ParseArgs(pairs []string) (gateway.Request, error) {
	fields := make(map[string]any)
	overrides := make(map[string]any)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return gateway.Request{}, fmt.Errorf("argument %q is not key=value", p)
		}
		switch name, isOverride := strings.CutPrefix(k, "overrides."); {
		case isOverride:
			overrides[name] = jsonOrString(v)
		case k == "step":
			fields[k] = v == "true" || v == "1"
		default:
			fields[k] = v
		}
	}
	if len(overrides) > 0 {
		fields["overrides"] = overrides
	}
	var req gateway.Request
	if err := convert(fields, &req); err != nil {
		return gateway.Request{}, err
	}
	return req, nil
}

func jsonOrString(v string) any {
	var out any
	if err := sonic.UnmarshalString(v, &out); err != nil {
		return v
	}
	return out
}

func toPlain(v any) (any, error) {
	var out any
	if err := convert(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func convert(in, out any) error {
	raw, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
