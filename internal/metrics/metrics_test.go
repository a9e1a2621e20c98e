package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GesturePublished(3)
	m.Routed("left", RouteDelivered)
	m.PeerConnected()
	m.ExtensionDisconnected()
	m.PeerBytes(10)
	m.DecodeError()
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	return w.Body.String()
}

func TestRoutedCountsByLabel(t *testing.T) {
	m := New()
	m.Routed("left", RouteDelivered)
	m.Routed("left", RouteDelivered)
	m.Routed("right", RouteNoDevice)

	body := scrape(t, m)
	for _, want := range []string{
		`tableap_routes_total{edge="left",result="delivered"} 2`,
		`tableap_routes_total{edge="right",result="no_device"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q", want)
		}
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.GesturePublished(1)
	m.PeerConnected()

	body := scrape(t, m)
	for _, want := range []string{"tableap_gestures_published_total 1", "tableap_gestures_dropped_total 1", "tableap_peer_connections 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q", want)
		}
	}
}
