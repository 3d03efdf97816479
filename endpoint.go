package artemis

import "fmt"

// Endpoint identifies a single broker address this client may connect
// to. It is immutable after construction and compares structurally.
type Endpoint struct {
	Scheme      string
	Host        string
	Port        int
	User        string
	Password    string
	ContainerID string
}

// String renders the endpoint as an amqp(s) URL, omitting credentials.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// Address renders the full connection address including credentials, as
// consumed by the transport adapter's OpenConnection.
func (e Endpoint) Address() string {
	if e.User == "" {
		return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d", e.Scheme, e.User, e.Password, e.Host, e.Port)
}

// Equal reports structural equality between two endpoints.
func (e Endpoint) Equal(other Endpoint) bool {
	return e == other
}

// Endpoints is an ordered, non-empty rotation of broker endpoints.
type Endpoints []Endpoint

// Validate rejects an empty endpoint list.
func (e Endpoints) Validate() error {
	if len(e) == 0 {
		return NewError(KindConfiguration, "endpoint list must not be empty")
	}
	return nil
}

// At returns the endpoint for attempt i, rotating through the list.
func (e Endpoints) At(attempt int) Endpoint {
	return e[attempt%len(e)]
}
