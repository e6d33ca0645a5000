package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"gridvi/reinforcement"
	"gridvi/server/fastview"
)

// Stream message types.
const (
	messageProgress = "progress"
	messageResult   = "result"
	messageError    = "error"
)

// StreamMessage is one websocket frame of a streamed solve: a progress snapshot, the final
// result, or the error that ended the solve.
type StreamMessage struct {
	Type     string                  `json:"type"`
	Snapshot *reinforcement.Snapshot `json:"snapshot,omitempty"`
	Result   *SolveResponse          `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Status   int                     `json:"status,omitempty"`
}

// serveSolveStream upgrades to a websocket, reads one SolveRequest, and publishes solver
// snapshots as they occur. Snapshots arriving faster than the publish interval are dropped,
// but the closing result or error message is always delivered before the socket closes.
func (server *Server) serveSolveStream(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient[StreamMessage](w, r, server.publishInterval)
	if err != nil {
		server.logger.Warn("stream rejected", "error", err)
		return
	}
	defer cli.Close()

	// A hijacked connection's request context outlives the peer, so the session owns one.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req SolveRequest
	if err = cli.ReadJSON(ctx, &req); err != nil {
		server.logger.Warn("stream request", "error", err)
		return
	}

	messages := make(chan StreamMessage)
	go func() {
		defer close(messages)
		send := func(msg StreamMessage) {
			select {
			case messages <- msg:
			case <-ctx.Done():
			}
		}

		res, err := server.solveStreamed(ctx, &req, func(_ context.Context, snap reinforcement.Snapshot) {
			server.metrics.lastResidual.Store(snap.Residual)
			send(StreamMessage{Type: messageProgress, Snapshot: &snap})
		})
		if err != nil {
			send(StreamMessage{Type: messageError, Error: err.Error(), Status: statusFor(err)})
			return
		}
		send(StreamMessage{Type: messageResult, Result: res})
	}()

	server.logger.Info("stream started", "remote", r.RemoteAddr)
	if err = cli.Sync(ctx, messages); err != nil {
		server.logger.Warn("stream ended", "error", err)
		return
	}
	server.logger.Info("stream finished", "remote", r.RemoteAddr)
}

func (server *Server) solveStreamed(
	ctx context.Context,
	req *SolveRequest,
	progress reinforcement.ProgressFunc,
) (*SolveResponse, error) {
	opts, err := req.options()
	if err != nil {
		return nil, err
	}
	opts.Progress = progress
	res, err := server.solve(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newSolveResponse(res)
}

// statusRecorder captures the response status for request logs. It passes Hijack through
// so websocket upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T cannot hijack", rec.ResponseWriter)
	}
	rec.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (server *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		server.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
