package shipment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reconagent/internal/domain"
)

func TestClientAuthenticateAndStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/external/auth/login":
			var creds map[string]string
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
				t.Errorf("decode creds: %v", err)
			}
			if creds["email"] != "ops@example.org" {
				t.Errorf("unexpected email: %s", creds["email"])
			}
			_, _ = w.Write([]byte(`{"token":"tok-9"}`))
		case "/v1/external/courier/track":
			if r.Header.Get("Authorization") != "Bearer tok-9" {
				t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
			}
			if r.URL.Query().Get("shipment_id") != "s1" {
				t.Errorf("unexpected shipment id: %s", r.URL.Query().Get("shipment_id"))
			}
			_, _ = w.Write([]byte(`{"tracking_data":{"shipment_status":"RTO"}}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "ops@example.org", "secret")
	ctx := context.Background()

	token, err := client.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if token != "tok-9" {
		t.Fatalf("unexpected token: %s", token)
	}

	status, err := client.Status(ctx, "s1", token)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status.Label != "RTO" {
		t.Fatalf("unexpected label: %s", status.Label)
	}
	if !status.Failed() {
		t.Fatal("RTO must classify as failed")
	}
}

func TestPageTrackerStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/track/s7" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`
		<html><body>
		  <div class="shipment">
		    <span class="status-label"> Undelivered </span>
		  </div>
		</body></html>`))
	}))
	defer server.Close()

	tracker := NewPageTracker(server.URL+"/track/%s", ".status-label", server.Client())

	status, err := tracker.Status(context.Background(), "s7", "")
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status.Label != "Undelivered" {
		t.Fatalf("unexpected label: %q", status.Label)
	}
	if !status.Failed() {
		t.Fatal("Undelivered must classify as failed")
	}
}

func TestPageTrackerMissingSelector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer server.Close()

	tracker := NewPageTracker(server.URL+"/track/%s", ".status-label", server.Client())

	if _, err := tracker.Status(context.Background(), "s7", ""); err == nil {
		t.Fatal("expected error when no status element matches")
	}
}

func TestShipmentStatusClassification(t *testing.T) {
	t.Parallel()

	failed := []string{"Undelivered", "RTO", "Failed", "Cancelled"}
	for _, label := range failed {
		if !(domain.ShipmentStatus{Label: label}).Failed() {
			t.Fatalf("%s must classify as failed", label)
		}
	}

	healthy := []string{"In Transit", "Delivered", "Out For Delivery", "", "Unknown"}
	for _, label := range healthy {
		if (domain.ShipmentStatus{Label: label}).Failed() {
			t.Fatalf("%s must not classify as failed", label)
		}
	}
}
