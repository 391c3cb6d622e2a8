package fingerprint_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/okian/watchtower/internal/domain/fingerprint"
	. "github.com/smartystreets/goconvey/convey"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestFingerprint(t *testing.T) {
	Convey("Given structurally equal data built in different key orders", t, func() {
		a := map[string]any{}
		a["title"] = "Fed cuts rates"
		a["price"] = 0.42
		a["meta"] = map[string]any{"z": 1, "a": []any{"x", "y"}}

		b := map[string]any{}
		b["meta"] = map[string]any{"a": []any{"x", "y"}, "z": 1}
		b["price"] = 0.42
		b["title"] = "Fed cuts rates"

		Convey("Then the fingerprints are identical lowercase sha256 hex", func() {
			So(fingerprint.Of(a), ShouldEqual, fingerprint.Of(b))
			So(hexDigest.MatchString(fingerprint.Of(a)), ShouldBeTrue)
		})

		Convey("When a nested value differs", func() {
			b["meta"] = map[string]any{"a": []any{"x", "y"}, "z": 2}

			Convey("Then the fingerprints differ", func() {
				So(fingerprint.Of(a), ShouldNotEqual, fingerprint.Of(b))
			})
		})

		Convey("When array order differs", func() {
			b["meta"] = map[string]any{"a": []any{"y", "x"}, "z": 1}

			Convey("Then the fingerprints differ", func() {
				So(fingerprint.Of(a), ShouldNotEqual, fingerprint.Of(b))
			})
		})
	})

	Convey("Given the canonical form", t, func() {
		Convey("Then keys are sorted and scalars use literal encoding", func() {
			got := fingerprint.Canonical(map[string]any{"b": true, "a": nil, "c": []any{1, 2.5, "s"}})
			So(got, ShouldEqual, `{"a":null,"b":true,"c":[1,2.5,"s"]}`)
		})

		Convey("Then integral floats and ints encode alike", func() {
			So(fingerprint.Of(map[string]any{"n": 1}), ShouldEqual, fingerprint.Of(map[string]any{"n": 1.0}))
		})

		Convey("Then typed values are normalized through JSON", func() {
			typed := map[string]any{"tags": []string{"a", "b"}, "h": map[string]string{"k": "v"}}
			plain := map[string]any{"tags": []any{"a", "b"}, "h": map[string]any{"k": "v"}}
			So(fingerprint.Of(typed), ShouldEqual, fingerprint.Of(plain))
		})

		Convey("Then an empty map has a stable fingerprint", func() {
			So(fingerprint.Of(map[string]any{}), ShouldEqual, fingerprint.Of(nil))
		})
	})

	Convey("Given unencodable input", t, func() {
		Convey("When the map contains itself", func() {
			cyclic := map[string]any{}
			cyclic["self"] = cyclic

			Convey("Then fingerprinting panics with ErrUnencodable", func() {
				var recovered any
				func() {
					defer func() { recovered = recover() }()
					fingerprint.Of(cyclic)
				}()
				err, ok := recovered.(error)
				So(ok, ShouldBeTrue)
				So(errors.Is(err, fingerprint.ErrUnencodable), ShouldBeTrue)
			})
		})

		Convey("When the map contains a channel", func() {
			So(func() { fingerprint.Of(map[string]any{"ch": make(chan int)}) }, ShouldPanic)
		})
	})
}
