package grid_world

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMove(t *testing.T) {
	Convey("When moving without obstacles", t, func() {
		var none Obstacles

		Convey("Actions pointing off the grid leave the agent in place", func() {
			corners := map[int][]Action{
				0:  {Up, Left},
				4:  {Up, Right},
				20: {Down, Left},
				24: {Down, Right},
			}
			for cell, actions := range corners {
				for _, a := range actions {
					next, err := Move(cell, a, &none)
					So(err, ShouldBeNil)
					So(next, ShouldEqual, cell)
				}
			}
		})

		Convey("Interior moves follow the action offsets", func() {
			for _, tc := range []struct {
				action Action
				want   int
			}{
				{Up, 7}, {Down, 17}, {Left, 11}, {Right, 13},
			} {
				next, err := Move(12, tc.action, &none)
				So(err, ShouldBeNil)
				So(next, ShouldEqual, tc.want)
			}
		})

		Convey("Right from the last column does not wrap to the next row", func() {
			next, _ := Move(9, Right, &none)
			So(next, ShouldEqual, 9)
		})
	})

	Convey("When an obstacle is present", t, func() {
		obs, err := NewObstacles([]int{7})
		So(err, ShouldBeNil)

		Convey("Moving down from cell 2 into obstacle 7 is blocked", func() {
			from, _ := FromOneBased(2)
			next, err := Move(from, Down, &obs)
			So(err, ShouldBeNil)
			So(ToOneBased(next), ShouldEqual, 2)
		})

		Convey("Every neighbour is blocked from entering the obstacle", func() {
			for from, a := range map[int]Action{11: Up, 1: Down, 7: Left, 5: Right} {
				next, _ := Move(from, a, &obs)
				So(next, ShouldEqual, from)
			}
		})

		Convey("Leaving the obstacle cell is not blocked", func() {
			next, _ := Move(6, Right, &obs)
			So(next, ShouldEqual, 7)
		})
	})

	Convey("When the input is malformed", t, func() {
		var none Obstacles
		_, err := Move(3, Action(7), &none)
		So(errors.Is(err, ErrInvalidActionCode), ShouldBeTrue)

		_, err = Move(NumCells, Up, &none)
		So(errors.Is(err, ErrInvalidCellIndex), ShouldBeTrue)

		_, err = NewObstacles([]int{0})
		So(errors.Is(err, ErrInvalidCellIndex), ShouldBeTrue)
		_, err = NewObstacles([]int{26})
		So(errors.Is(err, ErrInvalidCellIndex), ShouldBeTrue)
	})
}

func TestObstacles(t *testing.T) {
	Convey("Obstacles round trip through their 1-based form", t, func() {
		obs, err := NewObstacles([]int{25, 1, 13, 13})
		So(err, ShouldBeNil)
		So(obs.Len(), ShouldEqual, 3)
		So(obs.OneBased(), ShouldResemble, []int{1, 13, 25})
		So(obs.Contains(12), ShouldBeTrue)
		So(obs.Contains(11), ShouldBeFalse)
		So(obs.Contains(-1), ShouldBeFalse)
	})
}

func TestWind(t *testing.T) {
	Convey("When building the outcome model", t, func() {
		Convey("The intended action gets w and the rest split 1-w", func() {
			w, err := NewWind(0.85)
			So(err, ShouldBeNil)
			dist := w.Distribution(Left)
			So(dist[Left.Index()], ShouldEqual, 0.85)
			sum := 0.0
			for _, p := range dist {
				sum += p
			}
			So(sum, ShouldAlmostEqual, 1.0, 1e-12)
			So(dist[Up.Index()], ShouldAlmostEqual, 0.05, 1e-12)
		})

		Convey("The legacy model keeps its fixed 0.1 off-weight", func() {
			dist := LegacyWind.Distribution(Up)
			So(dist, ShouldResemble, [NumActions]float64{0.7, 0.1, 0.1, 0.1})
		})

		Convey("Out of range winds are rejected", func() {
			for _, w := range []float64{-0.1, 1.5} {
				_, err := NewWind(w)
				So(errors.Is(err, ErrInvalidParameter), ShouldBeTrue)
			}
		})
	})

	Convey("Expected values weight each reachable cell", t, func() {
		values := make([]float64, NumCells)
		values[1] = 10
		var none Obstacles
		w, _ := NewWind(1)

		So(w.Expected(0, Right, values, &none), ShouldEqual, 10)
		So(w.Expected(0, Down, values, &none), ShouldEqual, 0)

		all := LegacyWind.ExpectedAll(0, values, &none)
		So(all[Right.Index()], ShouldAlmostEqual, 7, 1e-12)
		So(all[Up.Index()], ShouldAlmostEqual, 1, 1e-12)
		So(all[Up.Index()], ShouldAlmostEqual, LegacyWind.Expected(0, Up, values, &none), 1e-12)
	})
}

func TestPolicyCodes(t *testing.T) {
	Convey("Every code decodes and encodes back to itself", t, func() {
		So(len(PolicyCodes()), ShouldEqual, 15)
		for _, code := range PolicyCodes() {
			actions, err := DecodePolicyCode(code)
			So(err, ShouldBeNil)
			back, err := EncodePolicyCode(actions)
			So(err, ShouldBeNil)
			So(back, ShouldEqual, code)
		}
	})

	Convey("Composite codes list their tied actions", t, func() {
		actions, _ := DecodePolicyCode(9)
		So(actions, ShouldResemble, []Action{Down, Left, Right})
		code, _ := EncodePolicyCode([]Action{Right, Up})
		So(code, ShouldEqual, 14)
	})

	Convey("Unknown codes and empty sets are rejected", t, func() {
		for _, code := range []int{0, 5, 11, 21, 43} {
			_, err := DecodePolicyCode(code)
			So(errors.Is(err, ErrInvalidActionCode), ShouldBeTrue)
		}
		_, err := EncodePolicyCode(nil)
		So(errors.Is(err, ErrInvalidActionCode), ShouldBeTrue)
	})

	Convey("Complements cover the remaining actions", t, func() {
		So(Complement([]Action{Up, Right}), ShouldResemble, []Action{Down, Left})
		So(Complement([]Action{Up, Down, Left, Right}), ShouldBeEmpty)
	})

	Convey("Policies are validated for length and codes", t, func() {
		policy := make([]int, NumCells)
		for i := range policy {
			policy[i] = 4
		}
		So(ValidatePolicy(policy), ShouldBeNil)
		So(errors.Is(ValidatePolicy(policy[:3]), ErrInvalidDimension), ShouldBeTrue)
		policy[5] = 5
		So(errors.Is(ValidatePolicy(policy), ErrInvalidActionCode), ShouldBeTrue)
	})
}
