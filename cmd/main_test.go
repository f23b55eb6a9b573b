package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	app "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/config"
	"github.com/okian/iqscore/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// writeArtifacts stores a scaler and a classifier under dir.
func writeArtifacts(t *testing.T, dir string) (string, string) {
	scaler := filepath.Join(dir, "scaler_iq.json")
	model := filepath.Join(dir, "model_iq.json")
	if err := os.WriteFile(scaler, []byte(`{"feature_names_in":["raw_score"],"mean":[0],"scale":[2.5]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	tree := `{"kind":"decision_tree","feature_names_in":["raw_score"],"nodes":[
		{"feature_idx":0,"threshold":1,"left_child":1,"right_child":2,"is_leaf":false},
		{"is_leaf":true,"class_label":0},
		{"is_leaf":true,"class_label":1}]}`
	if err := os.WriteFile(model, []byte(tree), 0o600); err != nil {
		t.Fatal(err)
	}
	return scaler, model
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given configuration pointing at artifact files", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.ScalerPath, cfg.ModelPath = writeArtifacts(t, t.TempDir())
		cfg.AllowedOrigins = []string{"http://localhost:3000"}

		svc := newService(cfg, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		handler := newHandler(ctx, cfg, svc)

		convey.Convey("When posting a submission", func() {
			req := httptest.NewRequest("POST", "/predictions", strings.NewReader(`{"name":"Ayu","gender":"female","raw_score":"2.5"}`))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			convey.Convey("Then the decision tree should classify the raw score", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"derived_iq":115`)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"outcome":"pass"`)
			})
		})

		convey.Convey("When requesting the API docs", func() {
			for _, path := range []string{"/api-docs", "/openapi.yaml", "/healthz", "/stats"} {
				req := httptest.NewRequest("GET", path, nil)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})

	convey.Convey("Given configuration pointing at a missing model", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.ScalerPath, _ = writeArtifacts(t, t.TempDir())
		cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")

		convey.Convey("Then the service should refuse to start", func() {
			err := newService(cfg, logger.Get()).Start(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "missing.json")
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When running the system metrics updater until cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When running the service metrics updater until cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startServiceMetricsUpdater(ctx, app.New())
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When updating metrics directly", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(app.New()) }, convey.ShouldNotPanic)
		})
	})
}
