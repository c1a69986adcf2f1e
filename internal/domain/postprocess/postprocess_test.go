package postprocess_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/internal/domain/postprocess"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFuse(t *testing.T) {
	Convey("Given evaluated proposals", t, func() {
		props := []model.Proposal{
			{XMinScore: 0.5, XMaxScore: 0.4, IoUScore: 0.5, Score: 9},
			{XMinScore: 1, XMaxScore: 1, IoUScore: 0},
		}

		Convey("When scores are fused", func() {
			postprocess.Fuse(props)

			Convey("Then score is the product of the three estimates", func() {
				So(props[0].Score, ShouldAlmostEqual, 0.1, 1e-12)
				So(props[1].Score, ShouldEqual, 0)
			})
		})
	})
}

func TestToDetections(t *testing.T) {
	Convey("Given a 10 second video", t, func() {
		Convey("When a proposal spans (0.2, 0.6)", func() {
			got := postprocess.ToDetections([]model.Proposal{{XMin: 0.2, XMax: 0.6, Score: 0.7}}, 10, 100)

			Convey("Then its segment is [2, 6] seconds", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0].Segment[0], ShouldAlmostEqual, 2.0, 1e-12)
				So(got[0].Segment[1], ShouldAlmostEqual, 6.0, 1e-12)
				So(got[0].Score, ShouldEqual, 0.7)
			})
		})

		Convey("When a proposal leaves the unit interval", func() {
			got := postprocess.ToDetections([]model.Proposal{{XMin: -0.1, XMax: 1.2}}, 10, 100)

			Convey("Then it is clipped to the video", func() {
				So(got[0].Segment, ShouldResemble, [2]float64{0, 10})
			})
		})

		Convey("When there are more proposals than the cap", func() {
			props := make([]model.Proposal, 5)
			got := postprocess.ToDetections(props, 10, 3)

			Convey("Then only the first ones are kept", func() {
				So(len(got), ShouldEqual, 3)
			})
		})
	})
}

func TestResultKey(t *testing.T) {
	Convey("Given video names", t, func() {
		So(postprocess.ResultKey("v_abc123"), ShouldEqual, "abc123")
		So(postprocess.ResultKey("v_"), ShouldEqual, "")
		So(postprocess.ResultKey("x"), ShouldEqual, "")
	})
}

func TestProcessVideo(t *testing.T) {
	Convey("Given overlapping evaluated proposals of a 20 second video", t, func() {
		props := []model.Proposal{
			{XMin: 0, XMax: 0.5, XMinScore: 1, XMaxScore: 1, IoUScore: 0.9},
			{XMin: 0.05, XMax: 0.55, XMinScore: 1, XMaxScore: 1, IoUScore: 0.85},
			{XMin: 0.9, XMax: 1.0, XMinScore: 1, XMaxScore: 1, IoUScore: 0.1},
		}
		record := model.VideoRecord{Name: "v_clip", DurationSecond: 20}

		Convey("When the video is processed", func() {
			out := postprocess.ProcessVideo(props, record, postprocess.DefaultParams())
			dets := out.Detections

			Convey("Then the key drops the prefix", func() {
				So(out.Key, ShouldEqual, "clip")
				So(out.Kept, ShouldEqual, 2)
			})

			Convey("And detections come out of soft-NMS in selection order", func() {
				So(len(dets), ShouldEqual, 2)
				So(dets[0].Score, ShouldAlmostEqual, 0.9, 1e-12)
				So(dets[0].Segment, ShouldResemble, [2]float64{0, 10})
				So(dets[1].Score, ShouldBeLessThan, 0.85)
			})

			Convey("And the input keeps its original scores", func() {
				So(props[0].Score, ShouldEqual, 0)
			})
		})

		Convey("When the video has a single proposal", func() {
			dets := postprocess.ProcessVideo(props[:1], record, postprocess.DefaultParams()).Detections

			Convey("Then it is emitted without suppression", func() {
				So(len(dets), ShouldEqual, 1)
				So(dets[0].Score, ShouldAlmostEqual, 0.9, 1e-12)
			})
		})
	})
}

func TestNewDocument(t *testing.T) {
	Convey("Given merged detections", t, func() {
		doc := postprocess.NewDocument(map[string][]model.Detection{
			"clip": {{Score: 0.5, Segment: [2]float64{1, 2}}},
		})

		Convey("When the document is encoded", func() {
			raw, err := json.Marshal(doc)
			So(err, ShouldBeNil)

			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then it carries version, results and empty external data", func() {
				So(decoded["version"], ShouldEqual, "VERSION 1.3")
				So(decoded["external_data"], ShouldResemble, map[string]any{})
				results := decoded["results"].(map[string]any)
				So(results, ShouldContainKey, "clip")
			})
		})

		Convey("When there are no results", func() {
			empty := postprocess.NewDocument(nil)

			Convey("Then results is an empty object, not null", func() {
				So(empty.Results, ShouldNotBeNil)
			})
		})
	})
}
