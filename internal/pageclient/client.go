// Package pageclient is the page-side half of the wire protocol. It
// dials the engine, registers a tab, forwards navigations and detector
// reports, and feeds directives into the tab's router. The attach
// command uses it to stand in for a browser page.
package pageclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/router"
)

const (
	handshakeTimeout  = 5 * time.Second
	defaultPINTimeout = 5 * time.Second
)

// Config holds client configuration.
type Config struct {
	// URL is the page websocket endpoint, ws://host/ws/page.
	URL string
	// TabID registers under a fixed id; empty asks the server for one.
	TabID string
	// PINTimeout bounds the pin_check round-trip.
	PINTimeout time.Duration
	Logger     *logging.Logger

	// OnDirective and OnTeardown run on the read loop after the router
	// has handled the frame. The attach command uses them to print.
	OnDirective func(model.Directive)
	OnTeardown  func(reason string)
}

// Client is one tab session. It implements the router's PINVerifier
// and DecisionSink so prompt resolutions flow back over the socket.
type Client struct {
	cfg  Config
	log  *logging.Logger
	conn *websocket.Conn
	rt   *router.Router

	writeMu sync.Mutex

	mu         sync.Mutex
	tabID      string
	profileID  string
	policyHash string
	pinWait    chan bool
}

// Dial connects and completes the hello handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	if cfg.PINTimeout <= 0 {
		cfg.PINTimeout = defaultPINTimeout
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{cfg: cfg, log: log, conn: conn}

	env, err := model.Marshal(model.TypeHello, model.Hello{TabID: cfg.TabID})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.writeEnvelope(env); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var ackEnv model.Envelope
	if err := conn.ReadJSON(&ackEnv); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := model.Decode(ackEnv)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode handshake: %w", err)
	}
	ack, ok := msg.(model.HelloAck)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("handshake frame is %q, want hello_ack", ackEnv.Type)
	}

	c.tabID = ack.TabID
	c.profileID = ack.ProfileID
	c.policyHash = ack.PolicyHash
	c.rt = router.New(ack.TabID, c, c, log)
	return c, nil
}

// Router returns the tab's prompt state machine.
func (c *Client) Router() *router.Router { return c.rt }

// TabID returns the registered tab id.
func (c *Client) TabID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabID
}

// ProfileID returns the profile the session was acked with.
func (c *Client) ProfileID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profileID
}

// PolicyHash returns the policy hash the session was acked with.
func (c *Client) PolicyHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policyHash
}

// Close tears the socket down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run reads server frames until the socket closes or ctx is
// cancelled. Directives open the router; teardowns close it.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	for {
		var env model.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := model.Decode(env)
		if err != nil {
			c.log.Warn("undecodable server frame", "type", env.Type, "error", err)
			continue
		}

		switch m := msg.(type) {
		case model.HelloAck:
			c.mu.Lock()
			c.profileID = m.ProfileID
			c.policyHash = m.PolicyHash
			c.mu.Unlock()
		case model.Directive:
			c.rt.Open(m)
			if c.cfg.OnDirective != nil {
				c.cfg.OnDirective(m)
			}
		case model.Teardown:
			c.rt.Teardown(m.Reason)
			if c.cfg.OnTeardown != nil {
				c.cfg.OnTeardown(m.Reason)
			}
		case model.PINResult:
			c.mu.Lock()
			ch := c.pinWait
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- m.OK:
				default:
				}
			}
		default:
			c.log.Warn("unhandled server frame", "type", env.Type)
		}
	}
}

// Navigate reports a page change. The router drops any open prompt
// first so a late directive for the old page cannot attach to the new
// one.
func (c *Client) Navigate(url string) error {
	c.rt.Navigated(url)
	return c.send(model.TypeNav, model.Nav{TabID: c.TabID(), URL: url})
}

// ReportSignals forwards detector findings for the current page.
func (c *Client) ReportSignals(url string, signals []string, sensitive model.SensitiveFields) error {
	return c.send(model.TypeSignals, model.SignalReport{
		TabID:     c.TabID(),
		URL:       url,
		Signals:   signals,
		Sensitive: sensitive,
	})
}

// ReportPrompt forwards submitted prompt text for tracking.
func (c *Client) ReportPrompt(url, text string) error {
	return c.send(model.TypePrompt, model.PromptCapture{TabID: c.TabID(), URL: url, Text: text})
}

// VerifyPIN round-trips a pin_check through the engine. One check in
// flight at a time; the page UI serializes attempts anyway.
func (c *Client) VerifyPIN(ctx context.Context, pin string) (bool, error) {
	ch := make(chan bool, 1)
	c.mu.Lock()
	if c.pinWait != nil {
		c.mu.Unlock()
		return false, errors.New("pin check already in flight")
	}
	c.pinWait = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pinWait = nil
		c.mu.Unlock()
	}()

	if err := c.send(model.TypePINCheck, model.PINCheck{TabID: c.TabID(), PIN: pin}); err != nil {
		return false, err
	}

	select {
	case ok := <-ch:
		return ok, nil
	case <-time.After(c.cfg.PINTimeout):
		return false, errors.New("pin check timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SendDecision reports a prompt resolution to the engine.
func (c *Client) SendDecision(_ context.Context, rep model.DecisionReport) error {
	return c.send(model.TypeDecision, rep)
}

func (c *Client) send(msgType string, payload any) error {
	env, err := model.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	return c.writeEnvelope(env)
}

func (c *Client) writeEnvelope(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(env)
}
