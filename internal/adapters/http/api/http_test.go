package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/okian/iqscore/internal/adapters/export"
	"github.com/okian/iqscore/internal/adapters/http/api"
	service "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/domain/artifact"
	"github.com/okian/iqscore/internal/domain/model"
	"github.com/okian/iqscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies returns canned errors for every operation.
type mockDependencies struct {
	submitErr  error
	historyErr error
	exportErr  error
}

func (m *mockDependencies) Submit(_ context.Context, sid string, _ model.Submission) (string, service.Prediction, error) {
	return sid, service.Prediction{}, m.submitErr
}

func (m *mockDependencies) History(context.Context, string) ([]model.PredictionRecord, error) {
	return nil, m.historyErr
}

func (m *mockDependencies) Export(context.Context, string) (service.Export, error) {
	return service.Export{}, m.exportErr
}

func (m *mockDependencies) EndSession(context.Context, string) error { return nil }

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newTestService() *service.Service {
	svc := service.New(
		service.WithArtifacts(
			&artifact.StandardScaler{Features: []string{"raw_score"}, Mean: []float64{0}, Scale: []float64{2.5}},
			&artifact.Logistic{Features: []string{"raw_score"}, Coef: []float64{1}, Intercept: -1},
		),
		service.WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func newRouter(deps api.Dependencies, stats api.StatsProvider) chi.Router {
	r := api.NewRouter([]string{"http://localhost:3000"})
	api.NewServer(deps, stats).Register(context.Background(), r)
	return r
}

// client replays the session cookie like a browser would.
type client struct {
	handler http.Handler
	cookie  *http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name != api.SessionCookie {
			continue
		}
		if ck.MaxAge < 0 {
			c.cookie = nil
		} else {
			c.cookie = ck
		}
	}
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		svc := newTestService()
		defer svc.Stop()
		c := &client{handler: newRouter(svc, svc)}

		Convey("Then the health endpoint should expose metrics", func() {
			w := c.do("GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "iqscore_")
		})

		Convey("Then the stats endpoint should return JSON", func() {
			w := c.do("GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths should be 404", func() {
			w := c.do("GET", "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods should be rejected", func() {
			w := c.do("PUT", "/predictions", `{}`)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPredictions_Flow(t *testing.T) {
	Convey("Given a browser without a session", t, func() {
		svc := newTestService()
		defer svc.Stop()
		c := &client{handler: newRouter(svc, svc)}

		Convey("When listing predictions", func() {
			w := c.do("GET", "/predictions", "")

			Convey("Then an empty array should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When exporting", func() {
			w := c.do("GET", "/predictions/export", "")

			Convey("Then the history should be reported empty", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "empty_history")
			})
		})

		Convey("When submitting a score", func() {
			w := c.do("POST", "/predictions", `{"name":"Ayu","gender":"female","date":"2025-03-14","raw_score":"2.5"}`)

			Convey("Then the prediction should be created and a session cookie set", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(c.cookie, ShouldNotBeNil)
				So(c.cookie.HttpOnly, ShouldBeTrue)

				var got map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got["derived_iq"], ShouldEqual, 115.0)
				So(got["category"], ShouldEqual, "aboveAverage")
				So(got["category_label"], ShouldEqual, "Above Average")
				So(got["outcome"], ShouldEqual, "pass")
				So(got["outcome_label"], ShouldEqual, "Pass")
				So(got["gender"], ShouldEqual, "female")
				So(got["date"], ShouldEqual, "2025-03-14")
			})

			Convey("And submitting again with a numeric score and no date", func() {
				first := c.cookie.Value
				w := c.do("POST", "/predictions", `{"name":"Budi","gender":"male","raw_score":0}`)
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Result().Cookies(), ShouldBeEmpty)
				So(c.cookie.Value, ShouldEqual, first)

				Convey("Then the history should list both in order", func() {
					w := c.do("GET", "/predictions", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var list []map[string]interface{}
					So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
					So(list, ShouldHaveLength, 2)
					So(list[0]["name"], ShouldEqual, "Ayu")
					So(list[1]["name"], ShouldEqual, "Budi")
					So(list[1]["date"], ShouldEqual, "2025-06-01")
					So(list[1]["category"], ShouldEqual, "average")
				})

				Convey("Then the export should be a workbook with both rows", func() {
					w := c.do("GET", "/predictions/export", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(w.Header().Get("Content-Type"), ShouldEqual, export.ContentType)
					So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "prediction_history.xlsx")

					f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
					So(err, ShouldBeNil)
					defer f.Close()
					rows, err := f.GetRows(export.SheetName)
					So(err, ShouldBeNil)
					So(rows, ShouldHaveLength, 3)
					So(rows[1][0], ShouldEqual, "Ayu")
					So(rows[2][0], ShouldEqual, "Budi")
				})

				Convey("Then ending the session should clear the history", func() {
					w := c.do("DELETE", "/session", "")
					So(w.Code, ShouldEqual, http.StatusNoContent)
					So(c.cookie, ShouldBeNil)

					w = c.do("GET", "/predictions", "")
					So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
				})
			})
		})

		Convey("When a second browser submits", func() {
			other := &client{handler: c.handler}
			c.do("POST", "/predictions", `{"gender":"male","raw_score":"1"}`)
			other.do("POST", "/predictions", `{"gender":"female","raw_score":"2"}`)
			other.do("POST", "/predictions", `{"gender":"female","raw_score":"3"}`)

			Convey("Then each browser should only see its own history", func() {
				var mine, theirs []map[string]interface{}
				So(json.Unmarshal(c.do("GET", "/predictions", "").Body.Bytes(), &mine), ShouldBeNil)
				So(json.Unmarshal(other.do("GET", "/predictions", "").Body.Bytes(), &theirs), ShouldBeNil)
				So(mine, ShouldHaveLength, 1)
				So(theirs, ShouldHaveLength, 2)
			})
		})
	})
}

func TestPredictions_Rejections(t *testing.T) {
	Convey("Given a browser with one recorded prediction", t, func() {
		svc := newTestService()
		defer svc.Stop()
		c := &client{handler: newRouter(svc, svc)}
		So(c.do("POST", "/predictions", `{"gender":"male","raw_score":"1"}`).Code, ShouldEqual, http.StatusCreated)

		cases := []struct {
			body string
			code string
		}{
			{`{"gender":"male","raw_score":"abc"}`, "not_a_number"},
			{`{"gender":"male","raw_score":""}`, "not_a_number"},
			{`{"gender":"male","raw_score":"12x"}`, "not_a_number"},
			{`{"gender":"male","raw_score":true}`, "not_a_number"},
			{`{"gender":"male"}`, "not_a_number"},
			{`{"gender":"robot","raw_score":"1"}`, "invalid_gender"},
			{`{"gender":"female","date":"yesterday","raw_score":"1"}`, "invalid_date"},
			{`{"gender":"female","raw_score":"1","extra":1}`, "bad_request"},
			{`not json`, "bad_request"},
		}

		for _, tc := range cases {
			Convey(fmt.Sprintf("When posting %s", tc.body), func() {
				w := c.do("POST", "/predictions", tc.body)

				Convey("Then it should be rejected and the history unchanged", func() {
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w)["code"], ShouldEqual, tc.code)

					var list []map[string]interface{}
					So(json.Unmarshal(c.do("GET", "/predictions", "").Body.Bytes(), &list), ShouldBeNil)
					So(list, ShouldHaveLength, 1)
				})
			})
		}
	})
}

func TestPredictions_ServerErrors(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		deps := &mockDependencies{}
		c := &client{handler: newRouter(deps, &mockStatsProvider{stats: map[string]interface{}{}})}

		Convey("When the model fails", func() {
			deps.submitErr = fmt.Errorf("scoring: predict: %w", artifact.ErrModelShape)
			w := c.do("POST", "/predictions", `{"gender":"male","raw_score":"1"}`)

			Convey("Then a model error should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "model_error")
				So(c.cookie, ShouldBeNil)
			})
		})

		Convey("When the service is not started", func() {
			deps.submitErr = service.ErrNotStarted
			deps.historyErr = service.ErrNotStarted
			So(c.do("POST", "/predictions", `{"gender":"male","raw_score":"1"}`).Code, ShouldEqual, http.StatusServiceUnavailable)
			So(c.do("GET", "/predictions", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the export cannot be serialized", func() {
			deps.exportErr = fmt.Errorf("%w: record 1: missing date", export.ErrSerialization)
			w := c.do("GET", "/predictions/export", "")

			Convey("Then a serialization error should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "serialization_error")
			})
		})

		Convey("When the history lookup fails unexpectedly", func() {
			deps.historyErr = errors.New("boom")
			w := c.do("GET", "/predictions", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeError(w)["code"], ShouldEqual, "internal_error")
		})
	})
}

func TestPredictions_OverflowingScore(t *testing.T) {
	Convey("Given a browser with one recorded prediction", t, func() {
		svc := newTestService()
		defer svc.Stop()
		c := &client{handler: newRouter(svc, svc)}
		So(c.do("POST", "/predictions", `{"gender":"male","raw_score":"1"}`).Code, ShouldEqual, http.StatusCreated)

		Convey("When posting a finite score whose derived IQ overflows", func() {
			w := c.do("POST", "/predictions", `{"gender":"male","raw_score":"1e308"}`)

			Convey("Then a model error should be returned and the history still encode", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "model_error")

				list := c.do("GET", "/predictions", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				var records []map[string]interface{}
				So(json.Unmarshal(list.Body.Bytes(), &records), ShouldBeNil)
				So(records, ShouldHaveLength, 1)
				So(records[0]["derived_iq"], ShouldEqual, 106.0)
			})
		})
	})
}

func TestStats_UnencodableValue(t *testing.T) {
	Convey("Given stats holding a value JSON cannot encode", t, func() {
		stats := &mockStatsProvider{stats: map[string]interface{}{"ratio": math.Inf(1)}}
		c := &client{handler: newRouter(&mockDependencies{}, stats)}

		Convey("When requesting the stats", func() {
			w := c.do("GET", "/stats", "")

			Convey("Then an internal error should be returned instead of an empty success", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestRouter_CORS(t *testing.T) {
	Convey("Given a router allowing one origin", t, func() {
		r := newRouter(&mockDependencies{}, &mockStatsProvider{stats: map[string]interface{}{}})

		Convey("When a preflight request arrives from that origin", func() {
			req := httptest.NewRequest("OPTIONS", "/predictions", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", "POST")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			Convey("Then it should be allowed with credentials", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:3000")
				So(w.Header().Get("Access-Control-Allow-Credentials"), ShouldEqual, "true")
			})
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("cause")

		Convey("Then kinds and causes should both match", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: cause")
		})

		Convey("Then NewKind and Wrap should format their parts", func() {
			So(api.NewKind("api.op", api.ErrNotReady).Error(), ShouldEqual, "api.op: service not ready")
			So(api.Wrap("api.op", cause).Error(), ShouldEqual, "api.op: cause")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})
	})
}
