package websocket

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/websocket/wsconn"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/gorilla/websocket"
)

var _ internal.Dialer = (*Dialer)(nil)

type Dialer struct {
	cliID  int64
	url    string
	dialer *websocket.Dialer
	origin string
}

func newDialer(cliID int64, url string, origin string, c conf.WebSocket) *Dialer {
	return &Dialer{
		cliID:  cliID,
		url:    url,
		origin: origin,
		dialer: &websocket.Dialer{
			ReadBufferSize:   c.ReadBufSize,
			WriteBufferSize:  c.WriteBufSize,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context, target string) (_ net.Conn, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(err, "parse url failed. url=%s", target)
	}

	header := http.Header{}
	if d.origin != "" {
		header.Set("Origin", d.origin)
	}

	c, resp, err := d.dialer.DialContext(ctx, u.String(), header)

	if resp != nil && resp.Body != nil {
		if bodyErr := resp.Body.Close(); bodyErr != nil {
			err = errors.Join(err, errors.Wrapf(bodyErr, "close response body failed"))
		}
	}

	if err != nil {
		if c != nil {
			_ = c.Close()
		}

		return nil, errors.Wrapf(err, "connect failed. url=%s", target)
	}

	return wsconn.NewWebSocketConn(c), nil
}

func (d *Dialer) Target() string {
	return d.url
}
