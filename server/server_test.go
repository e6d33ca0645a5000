package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "gridvi/grid_world"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func goalReward() []float64 {
	reward := make([]float64, NumCells)
	reward[NumCells-1] = 10
	return reward
}

func postJSON(srv *httptest.Server, path string, body any) (*http.Response, []byte) {
	payload, err := json.Marshal(body)
	So(err, ShouldBeNil)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp, data
}

func float(f float64) *float64 {
	return &f
}

func TestSolveEndpoint(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv := httptest.NewServer(NewServer(":0", nil).Handler())
		defer srv.Close()

		Convey("A valid solve returns values, Q, the flat layout and a policy", func() {
			resp, data := postJSON(srv, "/v1/value-iteration", SolveRequest{
				Reward: goalReward(),
				Wind:   float(0.9),
				Beta:   0.95,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var out SolveResponse
			So(json.Unmarshal(data, &out), ShouldBeNil)
			So(len(out.Values), ShouldEqual, NumCells)
			So(len(out.Q), ShouldEqual, NumCells)
			So(len(out.Flat), ShouldEqual, NumCells*(1+NumActions))
			So(len(out.Policy), ShouldEqual, NumCells)
			So(out.Iterations, ShouldBeGreaterThan, 0)
			So(out.Residual, ShouldBeLessThanOrEqualTo, 0.01)
			So(out.Values[NumCells-1], ShouldBeGreaterThan, out.Values[0])
			So(out.Flat[NumCells+2], ShouldEqual, out.Q[0][2])
		})

		Convey("Validation failures are bad requests", func() {
			for _, req := range []SolveRequest{
				{Reward: goalReward()[:3]},
				{Reward: goalReward(), Obstacles: []int{30}},
				{Reward: goalReward(), Wind: float(2)},
				{Reward: goalReward(), Beta: 1.5},
				{Reward: goalReward(), Backup: "medium"},
			} {
				resp, data := postJSON(srv, "/v1/value-iteration", req)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(string(data), ShouldContainSubstring, "error")
			}
		})

		Convey("Malformed JSON is a bad request", func() {
			resp, err := http.Post(srv.URL+"/v1/value-iteration", "application/json", strings.NewReader("{"))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A solve that hits its iteration cap is unprocessable", func() {
			resp, _ := postJSON(srv, "/v1/value-iteration", SolveRequest{
				Reward:        goalReward(),
				Tolerance:     1e-15,
				MaxIterations: 2,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("Only POST is routed", func() {
			resp, err := http.Get(srv.URL + "/v1/value-iteration")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestTrajectoriesEndpoint(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv := httptest.NewServer(NewServer(":0", nil).Handler())
		defer srv.Close()

		policy := make([]int, NumCells)
		for i := range policy {
			policy[i] = 24
		}

		Convey("Seeded samples are reproducible across worker counts, including oversized ones", func() {
			var outs []TrajectoryResponse
			for _, workers := range []int{1, 6, 1 << 30} {
				resp, data := postJSON(srv, "/v1/trajectories", TrajectoryRequest{
					Policy:    policy,
					Obstacles: []int{13},
					Wind:      float(0.8),
					Seed:      5,
					Workers:   workers,
				})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var out TrajectoryResponse
				So(json.Unmarshal(data, &out), ShouldBeNil)
				outs = append(outs, out)
			}
			So(outs[0], ShouldResemble, outs[1])
			So(outs[0], ShouldResemble, outs[2])
			So(len(outs[0].Trajectories), ShouldEqual, 50)
			So(len(outs[0].Flat), ShouldEqual, 500)
			for _, cell := range outs[0].Flat {
				So(cell, ShouldNotEqual, 13)
			}
		})

		Convey("Unknown policy codes are bad requests", func() {
			policy[3] = 5
			resp, _ := postJSON(srv, "/v1/trajectories", TrajectoryRequest{Policy: policy})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A fully blocked grid is a bad request", func() {
			all := make([]int, NumCells)
			for i := range all {
				all[i] = i + 1
			}
			resp, _ := postJSON(srv, "/v1/trajectories", TrajectoryRequest{Policy: policy, Obstacles: all})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given a server that has solved once", t, func() {
		srv := httptest.NewServer(NewServer(":0", nil).Handler())
		defer srv.Close()
		resp, _ := postJSON(srv, "/v1/value-iteration", SolveRequest{Reward: goalReward()})
		So(resp.StatusCode, ShouldEqual, http.StatusOK)

		Convey("The health check answers", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("The metrics include the solve", func() {
			resp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			So(string(data), ShouldContainSubstring, `gridvi_solves_total{backup="hard",outcome="converged"} 1`)
			So(string(data), ShouldContainSubstring, "gridvi_last_residual")
			So(string(data), ShouldContainSubstring, "gridvi_solve_iterations_count 1")
		})
	})
}

func TestSolveStream(t *testing.T) {
	Convey("Given a streaming server", t, func() {
		server := NewServer(":0", nil)
		server.publishInterval = 5 * time.Millisecond
		srv := httptest.NewServer(server.Handler())
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/value-iteration/stream"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		readAll := func() (msgs []StreamMessage, err error) {
			for {
				var msg StreamMessage
				if err = conn.ReadJSON(&msg); err != nil {
					return
				}
				msgs = append(msgs, msg)
			}
		}

		Convey("Progress is followed by the result and a normal close", func() {
			So(conn.WriteJSON(SolveRequest{Reward: goalReward(), Backup: "soft"}), ShouldBeNil)
			msgs, err := readAll()
			So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
			So(len(msgs), ShouldBeGreaterThan, 0)

			last := msgs[len(msgs)-1]
			So(last.Type, ShouldEqual, messageResult)
			So(last.Result, ShouldNotBeNil)
			So(len(last.Result.Values), ShouldEqual, NumCells)
			for _, msg := range msgs[:len(msgs)-1] {
				So(msg.Type, ShouldEqual, messageProgress)
				So(msg.Snapshot.Iteration, ShouldBeLessThanOrEqualTo, last.Result.Iterations)
			}
		})

		Convey("An invalid request ends with an error message", func() {
			So(conn.WriteJSON(SolveRequest{Reward: goalReward()[:2]}), ShouldBeNil)
			msgs, err := readAll()
			So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
			So(len(msgs), ShouldEqual, 1)
			So(msgs[0].Type, ShouldEqual, messageError)
			So(msgs[0].Status, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatusFor(t *testing.T) {
	Convey("Errors map to statuses by kind", t, func() {
		So(statusFor(ErrInvalidCellIndex), ShouldEqual, http.StatusBadRequest)
		So(statusFor(io.EOF), ShouldEqual, http.StatusInternalServerError)
	})
}
