package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Client is the display end of a remote window. From the display's point of
// view it is the opener: posting to it reaches the control session.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger
}

var _ channel.Target = (*Client)(nil)

// DisplayURL is the websocket address a display for encounterID dials.
func DisplayURL(serverURL, encounterID, name string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/display"
	q := url.Values{}
	q.Set("encounter", encounterID)
	if name != "" {
		q.Set("window", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, serverURL, encounterID, name string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	addr, err := DisplayURL(serverURL, encounterID, name)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, log: log.Named("ws")}, nil
}

func (c *Client) Post(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrChannelUnavailable, err)
	}
	return nil
}

// Run reads frames until ctx ends or the server goes away, handing each one
// to deliver with the client as the source.
func (c *Client) Run(ctx context.Context, deliver Deliver) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Info("control session closed the display")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		deliver(c, data)
	}
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "display closed")
}
