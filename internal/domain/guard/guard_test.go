package guard_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/watchtower/internal/domain/guard"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGuard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new guard", t, func() {
		g := guard.New()

		Convey("When a tracker is acquired", func() {
			ok := g.Acquire(ctx, "t1")

			Convey("Then it is held and a second acquire fails", func() {
				So(ok, ShouldBeTrue)
				So(g.Held("t1"), ShouldBeTrue)
				So(g.Acquire(ctx, "t1"), ShouldBeFalse)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("And another tracker is acquired independently", func() {
				So(g.Acquire(ctx, "t2"), ShouldBeTrue)
				So(g.Size(), ShouldEqual, 2)
			})

			Convey("And it is released", func() {
				g.Release(ctx, "t1")

				Convey("Then it can be acquired again", func() {
					So(g.Held("t1"), ShouldBeFalse)
					So(g.Acquire(ctx, "t1"), ShouldBeTrue)
					acquired, rejected := guard.Stats(g)
					So(acquired, ShouldEqual, 2)
					So(rejected, ShouldEqual, 0)
				})
			})
		})

		Convey("When releasing an id that is not held", func() {
			g.Release(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(g.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded guard", t, func() {
		g := guard.New(guard.WithMaxInFlight(2))
		So(g.Acquire(ctx, "a"), ShouldBeTrue)
		So(g.Acquire(ctx, "b"), ShouldBeTrue)

		Convey("Then a third id is refused without evicting held ids", func() {
			So(g.Acquire(ctx, "c"), ShouldBeFalse)
			So(g.Held("a"), ShouldBeTrue)
			So(g.Held("b"), ShouldBeTrue)
		})
	})

	Convey("Given many goroutines racing for one tracker", t, func() {
		g := guard.New()
		var winners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if g.Acquire(ctx, "hot") {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one wins", func() {
			So(winners.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given concurrent acquire and release on distinct ids", t, func() {
		g := guard.New()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				id := fmt.Sprintf("t-%d", n)
				if g.Acquire(ctx, id) {
					g.Release(ctx, id)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then the guard ends empty", func() {
			So(g.Size(), ShouldEqual, 0)
		})
	})
}
