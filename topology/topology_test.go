package topology

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sorenbk/artemis-go"
)

func newTestServer(t *testing.T, status int, resp jolokiaResponse) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	client := NewClient(srv.URL, "0.0.0.0", "admin", "admin", nil)
	return srv, client
}

func TestCreateAddressConflictIsTopologyConflict(t *testing.T) {
	srv, client := newTestServer(t, http.StatusOK, jolokiaResponse{
		Status: 500,
		Error:  "AddressControlException: Address already exists: orders",
	})
	defer srv.Close()

	err := client.CreateAddress(context.TODO(), "orders", []string{"ANYCAST"})
	if !artemis.IsKind(err, artemis.KindTopologyConflict) {
		t.Fatalf("expected KindTopologyConflict, got %v", err)
	}
}

func TestCreateQueueMissingAddressIsTopologyConflict(t *testing.T) {
	srv, client := newTestServer(t, http.StatusOK, jolokiaResponse{
		Status: 500,
		Error:  "ActiveMQAddressDoesNotExistException: AddressDoesNotExist: orders",
	})
	defer srv.Close()

	err := client.CreateQueue(context.TODO(), QueueConfig{Name: "orders.q", Address: "orders", RoutingType: "ANYCAST"})
	if !artemis.IsKind(err, artemis.KindTopologyConflict) {
		t.Fatalf("expected KindTopologyConflict, got %v", err)
	}
}

func TestGetQueueNamesDecodesList(t *testing.T) {
	raw, _ := json.Marshal([]string{"orders.q", "returns.q"})
	srv, client := newTestServer(t, http.StatusOK, jolokiaResponse{
		Status: 200,
		Value:  raw,
	})
	defer srv.Close()

	names, err := client.GetQueueNames(context.TODO())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "orders.q" {
		t.Fatalf("unexpected names: %v", names)
	}
}
