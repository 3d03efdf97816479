package artemis

import "testing"

func TestEndpointsValidateRejectsEmpty(t *testing.T) {
	var e Endpoints
	if err := e.Validate(); !IsKind(err, KindConfiguration) {
		t.Fatalf("expected KindConfiguration, got %v", err)
	}
}

func TestEndpointsAtRotates(t *testing.T) {
	e := Endpoints{
		{Scheme: "amqp", Host: "a", Port: 5672},
		{Scheme: "amqp", Host: "b", Port: 5672},
		{Scheme: "amqp", Host: "c", Port: 5672},
	}
	want := []string{"a", "b", "c", "a", "b"}
	for i, w := range want {
		if got := e.At(i).Host; got != w {
			t.Errorf("attempt %d: got host %q, want %q", i, got, w)
		}
	}
}

func TestEndpointAddressOmitsCredentialsWhenUserEmpty(t *testing.T) {
	e := Endpoint{Scheme: "amqp", Host: "broker", Port: 5672}
	if got, want := e.Address(), "amqp://broker:5672"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEndpointAddressIncludesCredentials(t *testing.T) {
	e := Endpoint{Scheme: "amqp", Host: "broker", Port: 5672, User: "u", Password: "p"}
	if got, want := e.Address(), "amqp://u:p@broker:5672"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
