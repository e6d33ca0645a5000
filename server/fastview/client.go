// fastview publishes idempotent updates to websocket peers: updates arriving faster than the
// publish interval overwrite one another, and only the latest is written.
package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Time allowed for the peer to send its opening request.
	requestWait = 10 * time.Second

	// DefaultPublishInterval is the rate at which updates are sent to the peer, so as not to overburden it.
	DefaultPublishInterval = time.Millisecond * 100
	pingResolution         = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
	// Time allowed for the peer to answer our close frame.
	closeGracePeriod = time.Second
)

var upgrader = websocket.Upgrader{}

// Client publishes a stream of updates to a single websocket peer. The peer may send one
// request up front (see ReadJSON); anything it sends afterward is read and discarded so that
// pongs and close frames are processed.
type Client[T any] struct {
	ws       *websock
	interval time.Duration
}

// NewClient upgrades the request to a websocket. A non-positive interval selects
// DefaultPublishInterval.
func NewClient[T any](
	w http.ResponseWriter,
	r *http.Request,
	interval time.Duration,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the peer.
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Client[T]{
		ws:       newWebSocket(ws),
		interval: interval,
	}, nil
}

// ReadJSON reads a single JSON message from the peer, such as its opening request.
func (cli *Client[T]) ReadJSON(ctx context.Context, v any) error {
	return cli.ws.Read(
		ctx,
		func(ws *websocket.Conn) error {
			if err := ws.SetReadDeadline(time.Now().Add(requestWait)); err != nil {
				return err
			}
			if err := ws.ReadJSON(v); err != nil {
				return fmt.Errorf("read request: %w", err)
			}
			return ws.SetReadDeadline(time.Time{})
		})
}

// Sync publishes updates until the channel is closed, ctx is done, or the peer goes away.
// Updates received faster than the publish interval are discarded, except that the last
// update before closure is always written. After that the peer is sent a normal close frame.
// Sync returns nil on completion or peer disconnect, and an error if something unexpected
// occurred.
func (cli *Client[T]) Sync(ctx context.Context, updates <-chan T) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx, pong)
	})
	group.Go(func() error {
		if err := cli.publish(groupCtx, updates); err != nil {
			return err
		}
		if groupCtx.Err() != nil {
			return nil
		}
		err := cli.ws.CloseGracefully(groupCtx)
		// The reader is released by the peer's close reply or the grace deadline.
		cancel()
		return err
	})

	if err := group.Wait(); !errors.Is(err, errPeerClosed) {
		return err
	}
	return nil
}

// Close releases the underlying connection. Call it once Sync has returned.
func (cli *Client[T]) Close() error {
	return cli.ws.Conn().Close()
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// Runs the ping-pong for the client liveness check.
// NOTE: This function requires that readMessages is running to ensure the pong handler is called.
func (cli *Client[T]) pingPong(ctx context.Context, pong <-chan struct{}) error {
	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}

			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				// The session is closing; the reader will end it.
				return nil
			}
			if err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %T %w", err, err)
				}
			}
			return
		})
}

// errPeerClosed ends the session group when the peer closes normally.
var errPeerClosed = errors.New("peer closed the connection")

// readMessages drains messages from the peer. Errors returned by websocket Read methods are
// permanent, hence any error ends the session.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		switch {
		case ctx.Err() != nil:
			return nil
		case isClosure(err):
			return errPeerClosed
		case err != nil:
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// publish writes the latest pending update once per interval, and flushes whatever is
// pending when the updates channel closes.
func (cli *Client[T]) publish(ctx context.Context, updates <-chan T) error {
	ticker := channerics.NewTicker(ctx.Done(), cli.interval)

	var pending T
	hasPending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			// Graceful input channel closure
			if !ok {
				if hasPending {
					return cli.write(ctx, pending)
				}
				return nil
			}
			// Intentionally overwrites an unsent update.
			pending, hasPending = update, true
		case <-ticker:
			if !hasPending {
				break
			}
			if err := cli.write(ctx, pending); err != nil {
				return err
			}
			hasPending = false
		}
	}
}

func (cli *Client[T]) write(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				writeErr = fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
				return
			}

			if writeErr = ws.WriteJSON(update); writeErr != nil {
				if isError(writeErr) {
					writeErr = fmt.Errorf("publish failed: %T %w", writeErr, writeErr)
				}
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
