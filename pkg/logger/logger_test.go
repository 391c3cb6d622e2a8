package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := InitWith(&bytes.Buffer{}, "xml")

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a json logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWith(&buf, "json"), ShouldBeNil)
		defer func() { _ = Init() }()
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Named("runner").With(String("tracker_id", "t-1")).Info(ctx, "run finished",
				Int("events", 3),
				Error(errors.New("boom")),
			)

			Convey("Then the record carries component, fields and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"component":"runner"`)
				So(out, ShouldContainSubstring, `"tracker_id":"t-1"`)
				So(out, ShouldContainSubstring, `"events":3`)
				So(out, ShouldContainSubstring, `"error":"boom"`)
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When debug is disabled", func() {
			So(SetLevelString("info"), ShouldBeNil)
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the level string is invalid", func() {
			Convey("Then SetLevelString returns an error", func() {
				So(SetLevelString("loud"), ShouldNotBeNil)
				So(SetLevelString("WARNING"), ShouldBeNil)
			})
		})
	})
}
