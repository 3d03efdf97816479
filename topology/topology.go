// Package topology is a thin Artemis broker management client, modeled
// on kedacore/keda's pkg/scalers/artemis_scaler.go: a plain net/http
// client issuing Jolokia JSON-RPC-ish requests against the broker's
// management MBean, with basic auth and a CORS Origin header. Unlike
// the scaler (which only reads a queue's message count), this client
// also issues the "exec" operations needed to create addresses and
// queues, and classifies the broker's rejection messages into
// topology-conflict errors.
package topology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sorenbk/artemis-go"
)

// QueueConfig mirrors the fields spec.md §6 names for a create-queue
// request.
type QueueConfig struct {
	Name               string
	Address            string
	RoutingType        string
	Durable            bool
	Exclusive          bool
	GroupRebalance     bool
	GroupBuckets       int
	MaxConsumers       int
	AutoCreateAddress  bool
	PurgeOnNoConsumers bool
}

// Client issues Artemis management (Jolokia) requests over HTTP.
type Client struct {
	managementURL string
	brokerName    string
	username      string
	password      string
	corsOrigin    string
	httpClient    *http.Client
}

// NewClient builds a management Client. managementURL is the broker's
// console base, e.g. "http://localhost:8161".
func NewClient(managementURL, brokerName, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		managementURL: strings.TrimRight(managementURL, "/"),
		brokerName:    brokerName,
		username:      username,
		password:      password,
		corsOrigin:    managementURL,
		httpClient:    httpClient,
	}
}

type jolokiaRequest struct {
	Type      string        `json:"type"`
	Mbean     string        `json:"mbean"`
	Operation string        `json:"operation,omitempty"`
	Attribute string        `json:"attribute,omitempty"`
	Arguments []interface{} `json:"arguments,omitempty"`
}

type jolokiaResponse struct {
	Status    int             `json:"status"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
}

func (c *Client) brokerMbean() string {
	return fmt.Sprintf(`org.apache.activemq.artemis:broker=%q`, c.brokerName)
}

func (c *Client) call(ctx context.Context, req jolokiaRequest) (*jolokiaResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, artemis.WrapError(artemis.KindConfiguration, err, "encode jolokia request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.managementURL+"/console/jolokia/", bytes.NewReader(body))
	if err != nil {
		return nil, artemis.WrapError(artemis.KindConnectFailed, err, "build management request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", c.corsOrigin)
	httpReq.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, artemis.WrapError(artemis.KindConnectFailed, err, "management request failed")
	}
	defer resp.Body.Close()

	var jr jolokiaResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, artemis.WrapError(artemis.KindConnectFailed, err, "decode management response")
	}
	if jr.Status != http.StatusOK || jr.Error != "" {
		return nil, classifyManagementError(jr.Error)
	}
	return &jr, nil
}

// classifyManagementError maps Artemis's management exception messages
// to a TopologyConflict error when they indicate an already-exists or
// does-not-exist clash, per spec.md §8 scenarios 4-5; anything else
// surfaces as ConnectFailed since it's an unexpected management-plane
// failure rather than a topology state conflict.
func classifyManagementError(msg string) error {
	switch {
	case strings.Contains(msg, "already exist"):
		return artemis.NewError(artemis.KindTopologyConflict, "%s", msg)
	case strings.Contains(msg, "AddressDoesNotExist"):
		return artemis.NewError(artemis.KindTopologyConflict, "%s", msg)
	case strings.Contains(msg, "does not exist"):
		return artemis.NewError(artemis.KindTopologyConflict, "%s", msg)
	default:
		return artemis.NewError(artemis.KindConnectFailed, "management request rejected: %s", msg)
	}
}

// CreateAddress issues a createAddress exec call for address with the
// given routing types ("ANYCAST", "MULTICAST", or both).
func (c *Client) CreateAddress(ctx context.Context, address string, routingTypes []string) error {
	_, err := c.call(ctx, jolokiaRequest{
		Type:      "exec",
		Mbean:     c.brokerMbean(),
		Operation: "createAddress(java.lang.String,java.lang.String)",
		Arguments: []interface{}{address, strings.Join(routingTypes, ",")},
	})
	return err
}

// CreateQueue issues a createQueue exec call carrying cfg's fields as a
// single JSON-encoded configuration argument, matching the shape of
// Artemis's createQueue(String) management overload.
func (c *Client) CreateQueue(ctx context.Context, cfg QueueConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return artemis.WrapError(artemis.KindConfiguration, err, "encode queue configuration")
	}
	_, err = c.call(ctx, jolokiaRequest{
		Type:      "exec",
		Mbean:     c.brokerMbean(),
		Operation: "createQueue(java.lang.String)",
		Arguments: []interface{}{string(encoded)},
	})
	return err
}

// GetAddressNames reads the broker's current address names.
func (c *Client) GetAddressNames(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, jolokiaRequest{
		Type:      "read",
		Mbean:     c.brokerMbean(),
		Attribute: "AddressNames",
	})
	if err != nil {
		return nil, err
	}
	return decodeStringList(resp.Value)
}

// GetQueueNames reads the broker's current queue names.
func (c *Client) GetQueueNames(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, jolokiaRequest{
		Type:      "read",
		Mbean:     c.brokerMbean(),
		Attribute: "QueueNames",
	})
	if err != nil {
		return nil, err
	}
	return decodeStringList(resp.Value)
}

func decodeStringList(raw json.RawMessage) ([]string, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, artemis.WrapError(artemis.KindConnectFailed, err, "decode name list")
	}
	return names, nil
}
