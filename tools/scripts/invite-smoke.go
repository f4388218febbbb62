//go:build ignore

// Invite-smoke is a CI-friendly end-to-end check of a running server.
//
// It validates:
//   - handshake + subprotocol selection and the hello frame
//   - link creation over HTTP shows up as an invite_event on the feed
//   - accepting the link as a second user produces an accepted event
//   - a malformed code is rejected with invalid_request
//
// Run with: go run tools/scripts/invite-smoke.go -api http://127.0.0.1:8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "securechat/shared/contracts/invites/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

type feed struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		apiBase = flag.String("api", "http://127.0.0.1:8080", "HTTP base URL of the server")
		origin  = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		channel = flag.String("channel", fmt.Sprintf("smoke-%d", time.Now().Unix()), "Channel to exercise")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*apiBase, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -api %q", *apiBase)
	}

	root := context.Background()
	f := mustConnect(root, wsURL(base, *channel), *origin, *timeout)
	defer func() { _ = f.conn.Close(websocket.StatusNormalClosure, "bye") }()

	hello := f.mustReadUntil(root, v1.TypeHello, *timeout)
	if *verbose {
		fmt.Printf("hello: %s\n", hello.Payload)
	}

	var link struct {
		Code string `json:"code"`
		Link string `json:"link"`
	}
	mustCall(root, http.MethodPost, base.String()+"/channels/"+url.PathEscape(*channel)+"/invites/regenerate", "smoke-admin", http.StatusCreated, &link, *timeout)
	if link.Code == "" {
		fatalf("regenerate returned no code")
	}
	f.mustEvent(root, "created", link.Code, *timeout)

	var accepted struct {
		Outcome string `json:"outcome"`
	}
	mustCall(root, http.MethodPost, base.String()+"/invites/"+url.PathEscape(*channel)+"/"+link.Code+"/accept", "smoke-member", 0, &accepted, *timeout)
	f.mustEvent(root, "accepted", link.Code, *timeout)

	var bad struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	mustCall(root, http.MethodPost, base.String()+"/invites/"+url.PathEscape(*channel)+"/bad/accept", "smoke-member", http.StatusBadRequest, &bad, *timeout)
	if bad.Error.Code != "invalid_request" {
		fatalf("malformed code: got error code %q", bad.Error.Code)
	}

	fmt.Printf("OK: channel=%s code=%s outcome=%s\n", *channel, link.Code, accepted.Outcome)
}

func wsURL(base *url.URL, channel string) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"channel_id": {channel}}.Encode()
	return u.String()
}

func mustConnect(parent context.Context, target, origin string, stepTimeout time.Duration) *feed {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", target, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	f := &feed{
		conn:  conn,
		inbox: make(chan v1.Envelope, 128),
		errCh: make(chan error, 1),
	}
	go f.readLoop()
	return f
}

func (f *feed) readLoop() {
	defer close(f.inbox)
	for {
		_, data, err := f.conn.Read(context.Background())
		if err != nil {
			f.fail(err)
			return
		}
		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.fail(fmt.Errorf("bad json: %w", err))
			return
		}
		if err := env.Validate(); err != nil {
			f.fail(fmt.Errorf("bad envelope: %w", err))
			return
		}
		select {
		case f.inbox <- env:
		default:
			f.fail(errors.New("inbox overflow: consumer too slow"))
			return
		}
	}
}

func (f *feed) fail(err error) {
	select {
	case f.errCh <- err:
	default:
	}
}

func (f *feed) mustReadUntil(parent context.Context, typ string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	for {
		select {
		case env, ok := <-f.inbox:
			if !ok {
				fatalf("feed closed waiting for %s", typ)
			}
			if env.Type == v1.TypeError {
				fatalf("server error frame: %s", env.Payload)
			}
			if env.Type == typ {
				return env
			}
		case err := <-f.errCh:
			fatalf("feed: %v", err)
		case <-ctx.Done():
			fatalf("timeout waiting for %s", typ)
		}
	}
}

func (f *feed) mustEvent(parent context.Context, eventType, code string, stepTimeout time.Duration) {
	deadline := time.Now().Add(stepTimeout)
	for time.Now().Before(deadline) {
		env := f.mustReadUntil(parent, v1.TypeInviteEvent, time.Until(deadline))
		var p v1.InviteEventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal invite_event: %v", err)
		}
		if p.Type == eventType && p.InviteCode == code {
			return
		}
	}
	fatalf("no %s event for %s", eventType, code)
}

// mustCall issues a JSON request as user. A zero want accepts any 2xx.
func mustCall(parent context.Context, method, target, user string, want int, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	req.Header.Set("X-User-ID", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	ok := resp.StatusCode == want || (want == 0 && resp.StatusCode/100 == 2)
	if !ok {
		fatalf("%s %s: status=%d body=%s", method, target, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			fatalf("decode %s: %v", target, err)
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
