// Package config loads this module's configuration from environment
// variables, grounded on
// Harsh-BH-Sentinel/worker/internal/config/config.go's viper
// SetDefault/AutomaticEnv/ReadInConfig(".env") shape.
package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sorenbk/artemis-go"
)

// Config is the fully resolved configuration for a client, its initial
// producer, and its initial consumer.
type Config struct {
	Endpoints   artemis.Endpoints
	Policy      artemis.RecoveryPolicy
	Producer    artemis.ProducerConfig
	Consumer    artemis.ConsumerConfig
	MetricsPort int
}

// Load reads configuration from the environment (and an optional
// ".env" file in the working directory), applying the defaults
// documented below.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("ARTEMIS_ENDPOINTS", "amqp://localhost:5672")
	viper.SetDefault("ARTEMIS_CONTAINER_ID", "artemis-go-client")

	viper.SetDefault("ARTEMIS_RECOVERY_POLICY", "exponential")
	viper.SetDefault("ARTEMIS_RECOVERY_INITIAL_DELAY_MS", 100)
	viper.SetDefault("ARTEMIS_RECOVERY_MAX_DELAY_MS", 30000)
	viper.SetDefault("ARTEMIS_RECOVERY_FACTOR", 2.0)
	viper.SetDefault("ARTEMIS_RECOVERY_RETRY_COUNT", -1)
	viper.SetDefault("ARTEMIS_RECOVERY_FAST_FIRST", false)

	viper.SetDefault("ARTEMIS_PRODUCER_ADDRESS", "artemis-go.events")
	viper.SetDefault("ARTEMIS_PRODUCER_QUEUE", "")
	viper.SetDefault("ARTEMIS_PRODUCER_ROUTING_TYPE", "anycast")

	viper.SetDefault("ARTEMIS_CONSUMER_ADDRESS", "artemis-go.events")
	viper.SetDefault("ARTEMIS_CONSUMER_QUEUE", "artemis-go.events.q")
	viper.SetDefault("ARTEMIS_CONSUMER_ROUTING_TYPE", "anycast")
	viper.SetDefault("ARTEMIS_CONSUMER_PREFETCH", 50)

	viper.SetDefault("ARTEMIS_METRICS_PORT", 9464)

	_ = viper.ReadInConfig()

	endpoints, err := parseEndpoints(viper.GetString("ARTEMIS_ENDPOINTS"), viper.GetString("ARTEMIS_CONTAINER_ID"))
	if err != nil {
		return nil, err
	}

	policy, err := buildPolicy()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Endpoints: endpoints,
		Policy:    policy,
		Producer: artemis.ProducerConfig{
			Address:     viper.GetString("ARTEMIS_PRODUCER_ADDRESS"),
			Queue:       viper.GetString("ARTEMIS_PRODUCER_QUEUE"),
			RoutingType: parseRoutingType(viper.GetString("ARTEMIS_PRODUCER_ROUTING_TYPE")),
		},
		Consumer: artemis.ConsumerConfig{
			Address:       viper.GetString("ARTEMIS_CONSUMER_ADDRESS"),
			Queue:         viper.GetString("ARTEMIS_CONSUMER_QUEUE"),
			RoutingType:   parseRoutingType(viper.GetString("ARTEMIS_CONSUMER_ROUTING_TYPE")),
			PrefetchCount: uint32(viper.GetInt("ARTEMIS_CONSUMER_PREFETCH")),
		},
		MetricsPort: viper.GetInt("ARTEMIS_METRICS_PORT"),
	}
	return cfg, nil
}

// parseEndpoints splits a comma-separated list of amqp(s) URLs into an
// Endpoints rotation, tagging every endpoint with the same containerID.
func parseEndpoints(raw, containerID string) (artemis.Endpoints, error) {
	var endpoints artemis.Endpoints
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil {
			return nil, artemis.WrapError(artemis.KindConfiguration, err, "invalid endpoint %q", part)
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, artemis.WrapError(artemis.KindConfiguration, err, "endpoint %q missing a numeric port", part)
		}
		ep := artemis.Endpoint{
			Scheme:      u.Scheme,
			Host:        u.Hostname(),
			Port:        port,
			ContainerID: containerID,
		}
		if u.User != nil {
			ep.User = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		endpoints = append(endpoints, ep)
	}
	if err := endpoints.Validate(); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func buildPolicy() (artemis.RecoveryPolicy, error) {
	initial := time.Duration(viper.GetInt("ARTEMIS_RECOVERY_INITIAL_DELAY_MS")) * time.Millisecond
	max := time.Duration(viper.GetInt("ARTEMIS_RECOVERY_MAX_DELAY_MS")) * time.Millisecond
	factor := viper.GetFloat64("ARTEMIS_RECOVERY_FACTOR")
	retryCount := viper.GetInt("ARTEMIS_RECOVERY_RETRY_COUNT")
	fastFirst := viper.GetBool("ARTEMIS_RECOVERY_FAST_FIRST")

	switch strings.ToLower(viper.GetString("ARTEMIS_RECOVERY_POLICY")) {
	case "constant":
		return artemis.NewConstant(initial, retryCount, fastFirst)
	case "linear":
		return artemis.NewLinear(initial, max, retryCount, factor, fastFirst)
	case "exponential":
		return artemis.NewExponential(initial, max, retryCount, factor, fastFirst)
	case "decorrelated-jitter", "decorrelated_jitter", "jitter":
		return artemis.NewDecorrelatedJitter(initial, max, retryCount, fastFirst, nil)
	default:
		return nil, artemis.NewError(artemis.KindConfiguration, "unknown ARTEMIS_RECOVERY_POLICY %q", viper.GetString("ARTEMIS_RECOVERY_POLICY"))
	}
}

func parseRoutingType(s string) artemis.RoutingType {
	switch strings.ToLower(s) {
	case "multicast":
		return artemis.RoutingMulticast
	case "both":
		return artemis.RoutingBoth
	default:
		return artemis.RoutingAnycast
	}
}
