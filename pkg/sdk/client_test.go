package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://example.com", "http://[::1"} {
		if _, err := New(raw); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req questionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, http.StatusOK, answerResponse{Answer: "جواب: " + req.Question})
	}, WithAPIKey("k1"))
	c.baseURL.Path = "/api"

	got, err := c.Chat(context.Background(), "سؤال")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "جواب: سؤال" {
		t.Errorf("unexpected answer %q", got)
	}
}

func TestRoadmap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/roadmap" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, answerResponse{Answer: "<div>١</div>"})
	})

	got, err := c.Roadmap(context.Background(), "كيف؟")
	if err != nil || got != "<div>١</div>" {
		t.Fatalf("Roadmap = %q, %v", got, err)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"json detail", http.StatusInternalServerError, `{"detail":"عذراً، حدث خطأ"}`, "عذراً، حدث خطأ"},
		{"plain body", http.StatusBadGateway, "bad gateway\n", "bad gateway"},
		{"empty body", http.StatusUnauthorized, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Chat(context.Background(), "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Detail != tt.detail {
				t.Errorf("got %+v", apiErr)
			}
			if !IsStatus(err, tt.status) {
				t.Error("IsStatus mismatch")
			}
		})
	}
}

func TestStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("question") != "ما مدة الإشعار؟" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\ndata: سطر أول\ndata: سطر ثان\n\nevent: error\ndata: عذراً\n\n")
	})

	type event struct{ Event, Data string }
	var got []event
	err := c.Stream(context.Background(), "ما مدة الإشعار؟", func(ev, data string) {
		got = append(got, event{ev, data})
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []event{{"", "سطر أول\nسطر ثان"}, {StreamEventError, "عذراً"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_TrailingEventWithoutBlankLine(t *testing.T) {
	var got []string
	if err := readEvents(strings.NewReader("data: tail"), func(_, d string) { got = append(got, d) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "tail" {
		t.Errorf("got %v", got)
	}
}

func TestStream_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "السؤال مطلوب"})
	})
	err := c.Stream(context.Background(), "", func(string, string) { t.Error("unexpected event") })
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestVirtual(t *testing.T) {
	var received any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req virtualRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		received = req.UserQuery
		if s, ok := req.UserQuery.(string); ok && s == "لا شيء" {
			writeJSON(w, http.StatusOK, map[string]any{"result": map[string]string{"error": "لم يتم العثور على قضايا مشابهة"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": JudgmentResult{
			SimilarCases:      []SimilarCase{{CaseID: "7", Summary: "ملخص"}},
			Rationale:         "سبب",
			PredictedJudgment: "رفض الدعوى",
		}})
	})

	res, err := c.Virtual(context.Background(), map[string]any{"facts": "نزاع عمالي"})
	if err != nil {
		t.Fatalf("Virtual: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"facts": "نزاع عمالي"}, received); diff != "" {
		t.Errorf("payload mismatch:\n%s", diff)
	}
	if res.PredictedJudgment != "رفض الدعوى" || len(res.SimilarCases) != 1 || res.SimilarCases[0].CaseID != "7" {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = c.Virtual(context.Background(), "لا شيء")
	var vErr *VirtualError
	if !errors.As(err, &vErr) || vErr.Message != "لم يتم العثور على قضايا مشابهة" {
		t.Fatalf("expected VirtualError, got %v", err)
	}
	if !errors.Is(err, ErrVirtualFailed) {
		t.Error("VirtualError must match ErrVirtualFailed")
	}
}

func TestClassify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"domain": "نظام العمل"})
	})
	got, err := c.Classify(context.Background(), "فصلت من عملي")
	if err != nil || got != "نظام العمل" {
		t.Fatalf("Classify = %q, %v", got, err)
	}
}

func TestUsage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period") != "month" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, UsageReport{Period: PeriodMonth, TokensUsed: 5, TokensLimit: -1, TokensRemaining: -1})
	})
	rep, err := c.Usage(context.Background(), PeriodMonth)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if rep.Period != PeriodMonth || rep.TokensUsed != 5 || rep.TokensRemaining != -1 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestHealthAndReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case "/ready":
			writeJSON(w, http.StatusServiceUnavailable, ReadyStatus{
				Status: "degraded",
				Checks: map[string]string{"passages": "empty"},
			})
		}
	})

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	st, err := c.Ready(context.Background())
	if !IsStatus(err, http.StatusServiceUnavailable) {
		t.Fatalf("expected 503, got %v", err)
	}
	if st.Status != "degraded" || st.Checks["passages"] != "empty" {
		t.Errorf("unexpected ready status %+v", st)
	}
}

func TestWithTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, answerResponse{})
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	if _, err := c.Chat(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{}
	c, err := New("http://localhost", WithHTTPClient(hc), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if c.http != hc {
		t.Error("custom client not used")
	}
}

func TestWithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/classify" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "يرجى توضيح سؤالك"})
			return
		}
		writeJSON(w, http.StatusOK, answerResponse{Answer: "ok"})
	}, WithPrometheus(reg))

	_, _ = c.Chat(context.Background(), "x")
	_, _ = c.Classify(context.Background(), "x")

	if got := testutil.ToFloat64(c.obs.metrics.requests.WithLabelValues("/chat", "ok")); got != 1 {
		t.Errorf("chat ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.obs.metrics.requests.WithLabelValues("/classify", "error")); got != 1 {
		t.Errorf("classify error = %v, want 1", got)
	}

	// A second client on the same registry reuses the collectors.
	if _, err := New("http://localhost", WithPrometheus(reg)); err != nil {
		t.Errorf("second client: %v", err)
	}
}
