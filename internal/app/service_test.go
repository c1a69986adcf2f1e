package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/bsn/internal/adapters/repository"
	"github.com/okian/bsn/internal/adapters/worker"
	service "github.com/okian/bsn/internal/app"
	"github.com/okian/bsn/internal/config"
	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var (
	peakedStart = []float64{0.1, 0.8, 0.1, 0.1, 0.1, 0.7, 0.1, 0.1, 0.1, 0.1}
	peakedEnd   = []float64{0.1, 0.1, 0.1, 0.9, 0.1, 0.1, 0.1, 0.1, 0.6, 0.1}
	rampAction  = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
)

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.TScale = 10
	cfg.PGMTopK = 10
	cfg.PGMTopKTrain = 4
	cfg.PGMThread = 2
	cfg.PostThread = 3
	return cfg
}

func fixtureStore() *memStore {
	store := newMemStore(map[string]model.VideoRecord{
		"v_val1": {Subset: model.SubsetValidation, DurationSecond: 20,
			Annotations: []model.Annotation{{Segment: [2]float64{2, 8}}}},
		"v_val2": {Subset: model.SubsetValidation, DurationSecond: 10},
		"v_trn1": {Subset: model.SubsetTraining, DurationSecond: 50,
			Annotations: []model.Annotation{{Segment: [2]float64{10, 40}}}},
		"v_tst1": {Subset: model.SubsetTest, DurationSecond: 30},
	})
	for name := range store.records {
		store.curves[name] = model.BoundaryCurve{Start: peakedStart, End: peakedEnd, Action: rampAction}
	}
	return store
}

func TestService_New(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		svc, err := service.New()

		Convey("Then the service is created with a run id", func() {
			So(err, ShouldBeNil)
			So(svc.RunID(), ShouldNotBeEmpty)
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := testConfig()
		cfg.TScale = 0
		_, err := service.New(service.WithConfig(cfg))

		Convey("Then construction fails", func() {
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_GenerateProposals(t *testing.T) {
	ctx := context.Background()

	Convey("Given four videos across subsets", t, func() {
		store := fixtureStore()
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)

		Convey("When proposals are generated", func() {
			report, err := svc.GenerateProposals(ctx)

			Convey("Then every video gets its subset's top-K", func() {
				So(err, ShouldBeNil)
				So(report.Stage, ShouldEqual, service.StageProposals)
				So(report.Videos, ShouldEqual, 4)
				So(report.Failed, ShouldEqual, 0)
				So(report.RunID, ShouldEqual, svc.RunID())
				So(len(store.proposals["v_val1"]), ShouldEqual, 10)
				So(len(store.proposals["v_tst1"]), ShouldEqual, 10)
				So(len(store.proposals["v_trn1"]), ShouldEqual, 4)
			})

			Convey("And ground truth is attached only where it exists", func() {
				So(store.proposals["v_val1"][0].Match, ShouldNotBeNil)
				So(store.proposals["v_val2"][0].Match, ShouldBeNil)
			})
		})

		Convey("When one curve is missing", func() {
			delete(store.curves, "v_val2")
			report, err := svc.GenerateProposals(ctx)

			Convey("Then the other videos still complete", func() {
				So(report.Failed, ShouldEqual, 1)
				So(store.proposals, ShouldContainKey, "v_val1")
				So(store.proposals, ShouldNotContainKey, "v_val2")
			})

			Convey("And the failure names the video", func() {
				So(errors.Is(err, worker.ErrVideoFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "v_val2")
			})
		})
	})

	Convey("Given two services with the same seed but different sharding", t, func() {
		cfgA, cfgB := testConfig(), testConfig()
		cfgA.PGMThread, cfgB.PGMThread = 1, 3
		cfgA.PGMTopK, cfgB.PGMTopK = 30, 30
		storeA, storeB := fixtureStore(), fixtureStore()
		svcA, _ := service.New(service.WithConfig(cfgA), service.WithStore(storeA), service.WithRandSeed(7))
		svcB, _ := service.New(service.WithConfig(cfgB), service.WithStore(storeB), service.WithRandSeed(7))

		Convey("When both generate proposals", func() {
			_, errA := svcA.GenerateProposals(ctx)
			_, errB := svcB.GenerateProposals(ctx)

			Convey("Then padding is identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(storeA.proposals["v_tst1"], ShouldResemble, storeB.proposals["v_tst1"])
			})
		})
	})
}

func TestService_GenerateFeatures(t *testing.T) {
	ctx := context.Background()

	Convey("Given generated proposals", t, func() {
		store := fixtureStore()
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)
		_, err = svc.GenerateProposals(ctx)
		So(err, ShouldBeNil)

		Convey("When features are generated", func() {
			report, err := svc.GenerateFeatures(ctx)

			Convey("Then each video has one row per proposal", func() {
				So(err, ShouldBeNil)
				So(report.Failed, ShouldEqual, 0)
				rows, cols := store.features["v_val1"].Dims()
				So(rows, ShouldEqual, 10)
				So(cols, ShouldEqual, 32)
				rows, _ = store.features["v_trn1"].Dims()
				So(rows, ShouldEqual, 4)
			})
		})

		Convey("When the TEM curves only carry the action score", func() {
			for name, c := range store.curves {
				store.curves[name] = model.BoundaryCurve{Action: c.Action}
			}
			report, err := svc.GenerateFeatures(ctx)

			Convey("Then features are still sampled for every video", func() {
				So(err, ShouldBeNil)
				So(report.Failed, ShouldEqual, 0)
				So(len(store.features), ShouldEqual, 4)
			})
		})

		Convey("When the boundary ratio is configured as zero", func() {
			cfg := testConfig()
			cfg.BSPBoundaryRatio = 0
			zero, err := service.New(service.WithConfig(cfg), service.WithStore(store))
			So(err, ShouldBeNil)
			_, err = zero.GenerateFeatures(ctx)
			So(err, ShouldBeNil)

			Convey("Then each boundary block is flat", func() {
				m := store.features["v_val1"]
				rows, _ := m.Dims()
				for i := 0; i < rows; i++ {
					row := m.RawRowView(i)
					start, end := row[16:24], row[24:32]
					for j := range start {
						So(start[j], ShouldAlmostEqual, start[0], 1e-12)
						So(end[j], ShouldAlmostEqual, end[0], 1e-12)
					}
				}
			})
		})

		Convey("When proposals of one video are missing", func() {
			delete(store.proposals, "v_tst1")
			report, err := svc.GenerateFeatures(ctx)

			Convey("Then only that video fails", func() {
				So(report.Failed, ShouldEqual, 1)
				So(errors.Is(err, worker.ErrVideoFailed), ShouldBeTrue)
				So(store.features, ShouldNotContainKey, "v_tst1")
			})
		})
	})
}

func TestService_PostProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given evaluated proposals", t, func() {
		store := fixtureStore()
		store.evaluated["v_val1"] = []model.Proposal{
			{XMin: 0.1, XMax: 0.4, XMinScore: 1, XMaxScore: 1, IoUScore: 0.9},
			{XMin: 0.6, XMax: 0.9, XMinScore: 1, XMaxScore: 0.5, IoUScore: 0.8},
		}
		store.evaluated["v_val2"] = []model.Proposal{
			{XMin: 0.2, XMax: 0.6, XMinScore: 1, XMaxScore: 1, IoUScore: 0.5},
		}
		store.evaluated["v_tst1"] = []model.Proposal{
			{XMin: 0, XMax: 1, XMinScore: 1, XMaxScore: 1, IoUScore: 1},
		}
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)

		Convey("When the validation subset is post-processed", func() {
			report, err := svc.PostProcess(ctx, model.SubsetValidation)

			Convey("Then only validation videos are in the document", func() {
				So(err, ShouldBeNil)
				So(report.Videos, ShouldEqual, 2)
				So(report.Output, ShouldEqual, "mem://validation")
				doc := store.results[model.SubsetValidation]
				So(doc.Version, ShouldEqual, model.ResultVersion)
				So(len(doc.Results), ShouldEqual, 2)
				So(doc.Results, ShouldNotContainKey, "tst1")
			})

			Convey("And keys drop the prefix and segments are in seconds", func() {
				doc := store.results[model.SubsetValidation]
				So(doc.Results["val2"], ShouldHaveLength, 1)
				So(doc.Results["val2"][0].Segment[0], ShouldAlmostEqual, 2.0, 1e-12)
				So(doc.Results["val2"][0].Segment[1], ShouldAlmostEqual, 6.0, 1e-12)
				So(doc.Results["val1"][0].Score, ShouldAlmostEqual, 0.9, 1e-12)
			})
		})

		Convey("When a validation video has no evaluated proposals", func() {
			delete(store.evaluated, "v_val2")
			report, err := svc.PostProcess(ctx, model.SubsetValidation)

			Convey("Then the document is still written without it", func() {
				So(errors.Is(err, worker.ErrVideoFailed), ShouldBeTrue)
				So(report.Failed, ShouldEqual, 1)
				So(store.results[model.SubsetValidation].Results, ShouldContainKey, "val1")
				So(store.results[model.SubsetValidation].Results, ShouldNotContainKey, "val2")
			})
		})

		Convey("When the subset is training", func() {
			_, err := svc.PostProcess(ctx, model.SubsetTraining)

			Convey("Then it is rejected before any work", func() {
				So(errors.Is(err, repository.ErrUnknownSubset), ShouldBeTrue)
				So(store.results, ShouldBeEmpty)
			})
		})

		Convey("When the subset has no videos", func() {
			store.records = map[string]model.VideoRecord{"v_trn1": store.records["v_trn1"]}
			_, err := svc.PostProcess(ctx, model.SubsetTest)

			Convey("Then it fails with ErrNoVideos", func() {
				So(errors.Is(err, service.ErrNoVideos), ShouldBeTrue)
			})
		})
	})
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		store := fixtureStore()
		store.evaluated["v_tst1"] = []model.Proposal{{XMin: 0, XMax: 0.5, XMinScore: 1, XMaxScore: 1, IoUScore: 1}}
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)

		Convey("When all stages run for the test subset", func() {
			reports, err := svc.Run(ctx, model.SubsetTest,
				service.StageProposals, service.StageFeatures, service.StagePostProcess)

			Convey("Then each stage reports in order", func() {
				So(err, ShouldBeNil)
				So(len(reports), ShouldEqual, 3)
				So(reports[0].Stage, ShouldEqual, service.StageProposals)
				So(reports[1].Stage, ShouldEqual, service.StageFeatures)
				So(reports[2].Stage, ShouldEqual, service.StagePostProcess)
				So(store.results[model.SubsetTest].Results["tst1"], ShouldHaveLength, 1)
			})
		})

		Convey("When a stage name is unknown", func() {
			reports, err := svc.Run(ctx, model.SubsetTest, service.StageProposals, "train")

			Convey("Then the run stops at it", func() {
				So(errors.Is(err, service.ErrUnknownStage), ShouldBeTrue)
				So(len(reports), ShouldEqual, 1)
			})
		})

		Convey("When videos fail in an early stage", func() {
			delete(store.curves, "v_val2")
			reports, err := svc.Run(ctx, model.SubsetTest, service.StageProposals, service.StageFeatures)

			Convey("Then later stages still run", func() {
				So(len(reports), ShouldEqual, 2)
				So(errors.Is(err, worker.ErrVideoFailed), ShouldBeTrue)
				So(reports[1].Failed, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh service", t, func() {
		store := fixtureStore()
		store.evaluated["v_tst1"] = []model.Proposal{{XMin: 0, XMax: 0.5, XMinScore: 1, XMaxScore: 1, IoUScore: 1}}
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)

		Convey("Then no stages are reported yet", func() {
			So(svc.Reports(), ShouldBeEmpty)
			stats := svc.GetStats()
			So(stats["run_id"], ShouldEqual, svc.RunID())
			So(stats["stages"], ShouldBeEmpty)
		})

		Convey("When Run finishes two stages", func() {
			_, err := svc.Run(ctx, model.SubsetTest, service.StageProposals, service.StagePostProcess)
			So(err, ShouldBeNil)

			Convey("Then both are recorded in order", func() {
				reports := svc.Reports()
				So(len(reports), ShouldEqual, 2)
				So(reports[0].Stage, ShouldEqual, service.StageProposals)
				So(reports[1].Output, ShouldNotBeEmpty)
			})

			Convey("And the stats view carries the postprocess output", func() {
				stages, ok := svc.GetStats()["stages"].([]map[string]any)
				So(ok, ShouldBeTrue)
				So(len(stages), ShouldEqual, 2)
				So(stages[0]["videos"], ShouldEqual, 4)
				So(stages[0], ShouldNotContainKey, "output")
				So(stages[1]["output"], ShouldEqual, svc.Reports()[1].Output)
			})
		})
	})
}

func TestService_PostProcessKeyCollision(t *testing.T) {
	ctx := context.Background()

	Convey("Given two test videos whose names strip to the same key", t, func() {
		store := newMemStore(map[string]model.VideoRecord{
			"v_same": {Subset: model.SubsetTest, DurationSecond: 10},
			"x_same": {Subset: model.SubsetTest, DurationSecond: 20},
		})
		store.evaluated["v_same"] = []model.Proposal{{XMin: 0.1, XMax: 0.2, XMinScore: 1, XMaxScore: 1, IoUScore: 1}}
		store.evaluated["x_same"] = []model.Proposal{{XMin: 0.5, XMax: 1, XMinScore: 1, XMaxScore: 1, IoUScore: 1}}
		svc, err := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(err, ShouldBeNil)

		Convey("When the result document is built", func() {
			_, err := svc.PostProcess(ctx, model.SubsetTest)

			Convey("Then the first video by name keeps the key", func() {
				So(err, ShouldBeNil)
				dets := store.results[model.SubsetTest].Results["same"]
				So(dets, ShouldHaveLength, 1)
				So(dets[0].Segment[0], ShouldAlmostEqual, 1.0, 1e-12)
				So(dets[0].Segment[1], ShouldAlmostEqual, 2.0, 1e-12)
			})
		})
	})
}
