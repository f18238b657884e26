package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/hr-gateway/internal/server"
	"github.com/Sternrassler/hr-gateway/internal/testutil"
	"github.com/Sternrassler/hr-gateway/pkg/client"
	"github.com/Sternrassler/hr-gateway/pkg/config"
	"github.com/Sternrassler/hr-gateway/pkg/gateway"
	"github.com/Sternrassler/hr-gateway/pkg/geo"
)

type fakeUploader struct {
	uploads int
}

func (f *fakeUploader) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(`{"cloudName":"hr-portal"}`))
}

func (f *fakeUploader) UploadHandler(w http.ResponseWriter, r *http.Request) {
	f.uploads++
	_, _ = w.Write([]byte(`{"publicId":"x"}`))
}

func readJSONBody[T any](rec *httptest.ResponseRecorder) (output T) {
	data, err := io.ReadAll(rec.Result().Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(data, &output)).To(Succeed())
	return
}

var _ = Describe("Router", func() {
	var (
		mock     *testutil.MockAirtable
		lookup   *httptest.Server
		uploader *fakeUploader
		deps     server.Deps
		router   http.Handler
	)

	do := func(method, target string, body io.Reader) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, target, body))
		return rec
	}

	BeforeEach(func() {
		mock = testutil.NewMockAirtable()
		DeferCleanup(mock.Close)

		lookup = httptest.NewServer(http.NotFoundHandler())
		lookup.Close()

		c, err := client.New(client.DefaultConfig("keyTest"))
		Expect(err).NotTo(HaveOccurred())

		uploader = &fakeUploader{}
		deps = server.Deps{
			Logger: zerolog.Nop(),
			Gateway: gateway.New(config.AirtableConfig{
				APIKey:   "keyTest",
				BaseID:   "appBase",
				APIURL:   mock.URL(),
				MaxPages: 10,
			}, nil, c),
			Geo:      geo.NewService(geo.Config{URL: lookup.URL}, nil),
			Uploader: uploader,
		}
	})

	JustBeforeEach(func() {
		router = server.New(deps)
	})

	Describe("cross-origin handling", func() {
		It("answers preflight requests with 204 and no body", func() {
			rec := do(http.MethodOptions, "/api/employees", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusNoContent))
			Expect(rec.Body.Len()).To(BeZero())
			Expect(rec).To(HaveHTTPHeaderWithValue("Access-Control-Allow-Origin", "*"))
			Expect(mock.GetRequestCount()).To(BeZero())
		})

		It("answers preflight on unknown paths too", func() {
			Expect(do(http.MethodOptions, "/anything/at/all", nil)).To(HaveHTTPStatus(http.StatusNoContent))
		})

		It("sets permissive headers on every response", func() {
			rec := do(http.MethodGet, "/health", nil)

			Expect(rec).To(HaveHTTPHeaderWithValue("Access-Control-Allow-Origin", server.AllowOrigin))
			Expect(rec).To(HaveHTTPHeaderWithValue("Access-Control-Allow-Methods", server.AllowMethods))
			Expect(rec).To(HaveHTTPHeaderWithValue("Access-Control-Allow-Headers", server.AllowHeaders))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("application/json"))
		})
	})

	Describe("operational routes", func() {
		It("reports health", func() {
			rec := do(http.MethodGet, "/health", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusOK))
			Expect(readJSONBody[map[string]string](rec)).To(HaveKeyWithValue("status", "ok"))
		})

		It("exposes prometheus metrics", func() {
			do(http.MethodGet, "/health", nil)
			rec := do(http.MethodGet, "/metrics", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("hr_gateway_http_requests_total"))
		})

		It("echoes a request id", func() {
			rec := do(http.MethodGet, "/health", nil)
			Expect(rec.Header().Get("X-Request-ID")).NotTo(BeEmpty())
		})
	})

	Describe("data routes", func() {
		It("aggregates paginated lists", func() {
			mock.SetPages("/appBase/Payroll", testutil.Records("p", 2), testutil.Records("q", 1))

			rec := do(http.MethodGet, "/api/payroll", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusOK))
			body := readJSONBody[gateway.ListResponse](rec)
			Expect(body.Records).To(HaveLen(3))
			Expect(mock.GetRequestCount()).To(Equal(2))
		})

		It("returns 404 JSON for unknown resources", func() {
			rec := do(http.MethodGet, "/api/unknown", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusNotFound))
			Expect(readJSONBody[gateway.ErrorResponse](rec).Error).To(Equal("Not found"))
		})

		It("returns 405 with Allow for disabled methods", func() {
			rec := do(http.MethodDelete, "/api/attendance/rec1", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusMethodNotAllowed))
			Expect(rec).To(HaveHTTPHeaderWithValue("Allow", "GET, POST, PATCH, OPTIONS"))
			Expect(mock.GetRequestCount()).To(BeZero())
		})

		When("credentials are missing", func() {
			BeforeEach(func() {
				deps.Gateway = gateway.New(config.AirtableConfig{APIURL: mock.URL()}, nil, &client.Client{})
			})

			It("fails with 500 before calling the backing source", func() {
				rec := do(http.MethodGet, "/api/employees", nil)

				Expect(rec).To(HaveHTTPStatus(http.StatusInternalServerError))
				Expect(readJSONBody[gateway.ErrorResponse](rec).Error).To(ContainSubstring("server configuration error"))
				Expect(mock.GetRequestCount()).To(BeZero())
			})

			It("still serves the geolocation route", func() {
				Expect(do(http.MethodGet, "/api/iplookup", nil)).To(HaveHTTPStatus(http.StatusOK))
			})
		})
	})

	Describe("geolocation", func() {
		DescribeTable("returns the fallback payload when the lookup service is down",
			func(path string) {
				rec := do(http.MethodGet, path, nil)

				Expect(rec).To(HaveHTTPStatus(http.StatusOK))
				loc := readJSONBody[geo.Location](rec)
				Expect(loc.Fallback).To(BeTrue())
				Expect(loc.City).To(Equal("Unknown"))
			},
			Entry("api route", "/api/iplookup"),
			Entry("alias", "/iplookup"),
		)
	})

	Describe("upload routes", func() {
		It("routes the config endpoint", func() {
			rec := do(http.MethodGet, "/api/cloudinary/config", nil)
			Expect(rec).To(HaveHTTPStatus(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("hr-portal"))
		})

		It("routes uploads", func() {
			do(http.MethodPost, "/api/cloudinary/upload", strings.NewReader(""))
			Expect(uploader.uploads).To(Equal(1))
		})
	})

	Describe("fallbacks", func() {
		It("returns 404 JSON outside /api", func() {
			rec := do(http.MethodGet, "/nope", nil)

			Expect(rec).To(HaveHTTPStatus(http.StatusNotFound))
			Expect(readJSONBody[gateway.ErrorResponse](rec).Error).To(Equal("Not found"))
		})

		When("a handler panics", func() {
			BeforeEach(func() {
				deps.Gateway = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					panic("table exploded")
				})
			})

			It("converts the panic into a 500 carrying its message", func() {
				rec := do(http.MethodGet, "/api/employees", nil)

				Expect(rec).To(HaveHTTPStatus(http.StatusInternalServerError))
				Expect(readJSONBody[gateway.ErrorResponse](rec).Error).To(Equal("table exploded"))
			})
		})
	})
})
