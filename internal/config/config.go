// Package config carries the tunables for both binaries: protocol
// defaults from the registry's published contract, overridable by a
// YAML file and then by flags.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Registry holds the rendezvous service configuration.
type Registry struct {
	// ListenPort is the TCP port peers register on.
	ListenPort int `yaml:"listen_port"`
	// SubsetSize bounds the random peer list sent to a new node.
	SubsetSize int `yaml:"subset_size"`
	// PoolSize bounds concurrent peer sessions.
	PoolSize int `yaml:"pool_size"`
	// RunDuration is how long the system runs before a stop broadcast.
	RunDuration Duration `yaml:"run_duration"`
	// DrainDuration is how long report collection may take before the
	// directory resets.
	DrainDuration Duration `yaml:"drain_duration"`
	// StopRetries is how many stop rebroadcast rounds are attempted for
	// peers whose ack never arrived.
	StopRetries int `yaml:"stop_retries"`
	// AckWait bounds waiting for acks within one broadcast round.
	AckWait Duration `yaml:"ack_wait"`
	// DataDir is where peer source listings and reports are persisted.
	DataDir string `yaml:"data_dir"`
	// MetricsAddr, when set, serves prometheus metrics over HTTP.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Peer holds the node configuration.
type Peer struct {
	// RegistryAddr is the host:port of the rendezvous registry.
	RegistryAddr string `yaml:"registry_addr"`
	// TeamName identifies this node to the registry.
	TeamName string `yaml:"team_name"`
	// AdvertiseHost is the IPv4 address other peers reach us at.
	AdvertiseHost string `yaml:"advertise_host"`
	// UDPPort fixes the gossip port; 0 picks an ephemeral one.
	UDPPort int `yaml:"udp_port"`
	// FanoutInterval paces the peer-rebroadcast loop.
	FanoutInterval Duration `yaml:"fanout_interval"`
	// LivenessWindow is how recently a peer must have been heard from to
	// be included in fan-out.
	LivenessWindow Duration `yaml:"liveness_window"`
	// ReceiveTimeout bounds a blocking receive so loops stay responsive
	// to cancellation.
	ReceiveTimeout Duration `yaml:"receive_timeout"`
	// AckReceiveTimeout replaces ReceiveTimeout once a stop arrives; the
	// network is winding down and stragglers may be slow.
	AckReceiveTimeout Duration `yaml:"ack_receive_timeout"`
	// InputPollInterval paces the snippet input poll.
	InputPollInterval Duration `yaml:"input_poll_interval"`
	// DrainLinger is how long the ack responder keeps running after the
	// final report was delivered.
	DrainLinger Duration `yaml:"drain_linger"`
	// CodePath, when set, is sent as the source listing during
	// onboarding.
	CodePath string `yaml:"code_path"`
	// MetricsAddr, when set, serves prometheus metrics over HTTP.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config is the root document for both binaries.
type Config struct {
	Registry Registry `yaml:"registry"`
	Peer     Peer     `yaml:"peer"`
}

// Default returns the published protocol defaults.
func Default() Config {
	return Config{
		Registry: Registry{
			ListenPort:    55921,
			SubsetSize:    4,
			PoolSize:      10,
			RunDuration:   Duration(10 * time.Minute),
			DrainDuration: Duration(2 * time.Minute),
			StopRetries:   3,
			AckWait:       Duration(5 * time.Second),
			DataDir:       ".",
		},
		Peer: Peer{
			RegistryAddr:      "127.0.0.1:55921",
			TeamName:          "gossipnet",
			AdvertiseHost:     "127.0.0.1",
			FanoutInterval:    Duration(6 * time.Second),
			LivenessWindow:    Duration(10 * time.Second),
			ReceiveTimeout:    Duration(1 * time.Second),
			AckReceiveTimeout: Duration(25 * time.Second),
			InputPollInterval: Duration(500 * time.Millisecond),
			DrainLinger:       Duration(30 * time.Second),
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}
