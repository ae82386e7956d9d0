package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSensorFetchMissingConfig(t *testing.T) {
	s := NewSensor(SensorOptions{}, noopLogger())
	if _, err := s.Fetch(context.Background(), "B827EBD3DBA8"); err == nil {
		t.Fatal("未配置 API URL 时应报错")
	}

	s = NewSensor(SensorOptions{APIURL: "http://localhost/{device_id}"}, noopLogger())
	if _, err := s.Fetch(context.Background(), ""); err == nil {
		t.Fatal("缺少 device id 应报错")
	}
}

func TestSensorFetchSubstitutesDeviceID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[]}`))
	}))
	defer srv.Close()

	s := NewSensor(SensorOptions{
		APIURL:    srv.URL + "/device/{device_id}/history/",
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())

	payload, err := s.Fetch(context.Background(), "B827EBD3DBA8")
	if err != nil {
		t.Fatalf("Fetch 应成功: %v", err)
	}
	if gotPath != "/device/B827EBD3DBA8/history/" {
		t.Fatalf("路径不正确: %s", gotPath)
	}
	if len(payload.Feeds) != 0 {
		t.Fatalf("feeds 应为空, 实际 %d", len(payload.Feeds))
	}
}

func TestSensorFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSensor(SensorOptions{APIURL: srv.URL + "/{device_id}", Timeout: time.Second}, noopLogger())

	_, err := s.Fetch(context.Background(), "B827EBD3DBA8")
	if err == nil {
		t.Fatal("HTTP 404 应返回错误")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("错误类型应为 *NetworkError, 实际 %T", err)
	}
}

func TestSensorFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	s := NewSensor(SensorOptions{APIURL: srv.URL + "/{device_id}", Timeout: time.Second}, noopLogger())

	_, err := s.Fetch(context.Background(), "B827EBD3DBA8")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("传输失败应返回 *NetworkError, 实际 %T (%v)", err, err)
	}
}

func TestSensorFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feeds": forty-two}`))
	}))
	defer srv.Close()

	s := NewSensor(SensorOptions{APIURL: srv.URL + "/{device_id}", Timeout: time.Second}, noopLogger())

	_, err := s.Fetch(context.Background(), "B827EBD3DBA8")
	var malformed *MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("无法解析的响应应返回 *MalformedPayloadError, 实际 %T", err)
	}
}

func TestSensorFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"feeds": [
				{"AirBox": [
					{"0": {"timestamp": "2024-06-20T00:00:00Z", "s_d0": 12.5, "s_t0": 28.1}},
					{"1": {"timestamp": "2024-06-20T00:05:00Z", "s_d0": 13}}
				]}
			]
		}`))
	}))
	defer srv.Close()

	s := NewSensor(SensorOptions{APIURL: srv.URL + "/{device_id}", Timeout: time.Second}, noopLogger())

	payload, err := s.Fetch(context.Background(), "B827EBD3DBA8")
	if err != nil {
		t.Fatalf("Fetch 应成功: %v", err)
	}
	if len(payload.Feeds) != 1 {
		t.Fatalf("feeds 数量不正确: %d", len(payload.Feeds))
	}
	entries := payload.Feeds[0]["AirBox"]
	if len(entries) != 2 {
		t.Fatalf("entries 数量不正确: %d", len(entries))
	}
	values := entries[0]["0"]
	if values.Timestamp != "2024-06-20T00:00:00Z" {
		t.Fatalf("timestamp 不正确: %s", values.Timestamp)
	}
	if _, ok := values.Channels["s_d0"]; !ok {
		t.Fatal("应包含 s_d0 通道")
	}
}
