package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/ratelimit"
	"github.com/okian/watchtower/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func user(id string) model.UserClaims {
	return model.UserClaims{UserID: id, Role: model.RoleUser}
}

func TestFixedWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a limiter with limit=1 and a 60s window", t, func() {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		l, err := ratelimit.NewFixedWindow(1, 60000*time.Millisecond, ratelimit.WithClock(clock.Now))
		So(err, ShouldBeNil)

		Convey("When a user calls twice within the window", func() {
			first := l.Consume(ctx, user("u1"), "run")
			clock.Advance(59 * time.Second)
			second := l.Consume(ctx, user("u1"), "run")

			Convey("Then the second call is denied with retry information", func() {
				So(first, ShouldBeNil)
				So(ratelimit.IsDenied(second), ShouldBeTrue)
				var denied *ratelimit.DeniedError
				So(errors.As(second, &denied), ShouldBeTrue)
				So(denied.RetryAfter, ShouldEqual, time.Second)
				So(denied.ResourceClass, ShouldEqual, "run")
			})

			Convey("And a third call after the window elapses succeeds", func() {
				clock.Advance(time.Second)
				So(l.Consume(ctx, user("u1"), "run"), ShouldBeNil)
			})
		})

		Convey("When different users and resource classes are used", func() {
			So(l.Consume(ctx, user("u1"), "run"), ShouldBeNil)

			Convey("Then their counters are independent", func() {
				So(l.Consume(ctx, user("u2"), "run"), ShouldBeNil)
				So(l.Consume(ctx, user("u1"), "compare"), ShouldBeNil)
				So(ratelimit.IsDenied(l.Consume(ctx, user("u1"), "run")), ShouldBeTrue)
			})
		})

		Convey("When an admin calls repeatedly", func() {
			admin := model.UserClaims{UserID: "root", Role: model.RoleAdmin}

			Convey("Then no call is denied and no counter is created", func() {
				for i := 0; i < 50; i++ {
					So(l.Consume(ctx, admin, "run"), ShouldBeNil)
				}
				So(l.Len(), ShouldEqual, 0)
				So(l.Remaining(admin, "run"), ShouldEqual, 1)
			})
		})

		Convey("When windows are skipped entirely", func() {
			So(l.Consume(ctx, user("u1"), "run"), ShouldBeNil)
			clock.Advance(150 * time.Second)

			Convey("Then the window stays aligned to the first use", func() {
				So(l.Consume(ctx, user("u1"), "run"), ShouldBeNil)
				clock.Advance(29 * time.Second)
				err := l.Consume(ctx, user("u1"), "run")
				var denied *ratelimit.DeniedError
				So(errors.As(err, &denied), ShouldBeTrue)
				So(denied.RetryAfter, ShouldEqual, time.Second)
			})
		})

		Convey("When counters expire", func() {
			So(l.Consume(ctx, user("u1"), "run"), ShouldBeNil)
			So(l.Remaining(user("u1"), "run"), ShouldEqual, 0)
			clock.Advance(time.Minute)

			Convey("Then Sweep removes them", func() {
				So(l.Remaining(user("u1"), "run"), ShouldEqual, 1)
				So(l.Sweep(), ShouldEqual, 1)
				So(l.Len(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given invalid parameters", t, func() {
		_, errLimit := ratelimit.NewFixedWindow(0, time.Second)
		_, errWindow := ratelimit.NewFixedWindow(1, 0)

		Convey("Then construction fails", func() {
			So(errors.Is(errLimit, ratelimit.ErrInvalidLimit), ShouldBeTrue)
			So(errors.Is(errWindow, ratelimit.ErrInvalidLimit), ShouldBeTrue)
		})
	})

	Convey("Given many concurrent callers for one key", t, func() {
		l, err := ratelimit.NewFixedWindow(10, time.Hour)
		So(err, ShouldBeNil)

		var allowed atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Consume(ctx, user("burst"), "run") == nil {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly limit calls succeed", func() {
			So(allowed.Load(), ShouldEqual, 10)
		})
	})
}
