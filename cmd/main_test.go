package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/watchtower/internal/config"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const seedYAML = `
trackers:
  - id: fed
    owner_id: alice
    target:
      type: polymarketMarket
      market_id: "42"
    analysis:
      type: computational
      min_abs_move: 0.05
`

func TestWiring(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	convey.Convey("Given default configuration", t, func() {
		cfg := config.New()

		convey.Convey("When a trackers file is set", func() {
			path := filepath.Join(t.TempDir(), "trackers.yaml")
			convey.So(os.WriteFile(path, []byte(seedYAML), 0o600), convey.ShouldBeNil)
			cfg.TrackersFile = path

			store, err := buildStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.Convey("Then the memory store is seeded", func() {
				tr, err := store.GetTracker(ctx, "fed")
				convey.So(err, convey.ShouldBeNil)
				convey.So(tr.Target, convey.ShouldResemble, model.PolymarketMarket{MarketID: "42"})
			})
		})

		convey.Convey("When the trackers file is missing", func() {
			cfg.TrackersFile = filepath.Join(t.TempDir(), "missing.yaml")
			_, err := buildStore(ctx, cfg)

			convey.Convey("Then startup fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When no Gemini key is configured", func() {
			d, err := buildAnalyzer(ctx, cfg)

			convey.Convey("Then only the computational analyzer is available", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(d, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("Then the limiters build from defaults", func() {
			n, a, err := buildLimiters(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldNotBeNil)
			convey.So(a, convey.ShouldNotBeNil)
		})

		convey.Convey("Then email is routed only when enabled", func() {
			r := buildNotifier(cfg)
			convey.So(r, convey.ShouldNotBeNil)
			cfg.EmailEnabled = true
			cfg.SMTPHost = "smtp.example.com"
			convey.So(buildNotifier(cfg), convey.ShouldNotBeNil)
		})

		convey.Convey("Then quiet hours come from config", func() {
			cfg.QuietHoursStart, cfg.QuietHoursEnd = "22:00", "07:00"
			convey.So(buildGate(cfg, nil), convey.ShouldNotBeNil)
		})
	})
}
