package ipc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 5 * time.Second
	callTimeout      = 3 * time.Second
	redialBackoff    = 2 * time.Second
)

// request is one RPC sent to the in-game bridge plugin.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Bridge is a synchronous RPC client over a single websocket to the in-game
// bridge. Calls are serialized; a transport failure closes the connection and
// the next call redials. Facade accessors expose the game surfaces the state
// machines consume, each of which degrades to zero values when the bridge is
// unreachable so a lost connection reads as "window not found" or "not
// accepted" rather than an error the machines would have to handle.
type Bridge struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   uint64
	lastDial time.Time
	lastErr  string
}

func NewBridge(url string, logger *slog.Logger) *Bridge {
	return &Bridge{url: url, logger: logger}
}

// Shutdown closes the connection. Subsequent calls would redial; callers are
// expected to stop using the bridge after shutting it down.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// Connected reports whether the last call had a live connection.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// LastError is the most recent transport error, empty when healthy.
func (b *Bridge) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Bridge) dialLocked() error {
	if b.conn != nil {
		return nil
	}
	// Cheap redial throttle so a dead bridge does not stall every tick on a
	// full handshake timeout.
	if time.Since(b.lastDial) < redialBackoff {
		return fmt.Errorf("bridge unavailable: %s", b.lastErr)
	}
	b.lastDial = time.Now()

	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := d.Dial(b.url, http.Header{})
	if err != nil {
		b.lastErr = err.Error()
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	b.conn = conn
	b.lastErr = ""
	b.logger.Info("Bridge connected", slog.String("url", b.url))
	return nil
}

func (b *Bridge) dropLocked(err error) {
	b.lastErr = err.Error()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.logger.Warn("Bridge connection lost", slog.Any("error", err))
}

// call performs one request/response exchange. result may be nil for
// fire-and-forget methods.
func (b *Bridge) call(method string, params any, result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.dialLocked(); err != nil {
		return err
	}

	b.nextID++
	req := request{ID: b.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = raw
	}

	_ = b.conn.SetWriteDeadline(time.Now().Add(callTimeout))
	if err := b.conn.WriteJSON(req); err != nil {
		b.dropLocked(err)
		return err
	}

	// Responses arrive in request order; skip any with stale ids left over
	// from a previously timed-out exchange.
	for {
		_ = b.conn.SetReadDeadline(time.Now().Add(callTimeout))
		var resp response
		if err := b.conn.ReadJSON(&resp); err != nil {
			b.dropLocked(err)
			return err
		}
		if resp.ID != req.ID {
			continue
		}
		if !resp.OK {
			return fmt.Errorf("%s: %s", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: decoding result: %w", method, err)
			}
		}
		return nil
	}
}

// Ping performs one round-trip, dialing if needed. Used as a watchdog check.
func (b *Bridge) Ping() error {
	return b.call("ping", nil, nil)
}

// WorldsByDatacenter resolves the visitable worlds of a datacenter through
// the bridge, used when the configuration names a datacenter instead of an
// explicit world list.
func (b *Bridge) WorldsByDatacenter(datacenter string) ([]string, error) {
	var worlds []string
	err := b.call("worlds.by_datacenter", map[string]string{"datacenter": datacenter}, &worlds)
	if err != nil {
		return nil, err
	}
	if len(worlds) == 0 {
		return nil, fmt.Errorf("datacenter %q has no visitable worlds", datacenter)
	}
	return worlds, nil
}
