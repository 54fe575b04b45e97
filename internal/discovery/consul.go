package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

// Agent is the subset of the Consul agent API used for registration.
type Agent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

type ConsulClient struct {
	agent Agent
	log   *slog.Logger
}

type ServiceConfig struct {
	Name    string
	ID      string
	Address string
	Port    int
	Tags    []string
}

func NewConsulClient(addr string, logger *slog.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	// Test connection
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	return NewConsulClientWithAgent(client.Agent(), logger), nil
}

func NewConsulClientWithAgent(agent Agent, logger *slog.Logger) *ConsulClient {
	return &ConsulClient{
		agent: agent,
		log:   logger.With("component", "consul"),
	}
}

// getOutboundIP gets the preferred outbound IP of this machine
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// Registration builds the agent registration for cfg, with an HTTP check
// against the service's /health route.
func Registration(cfg ServiceConfig) *api.AgentServiceRegistration {
	address := cfg.Address
	if address == "" {
		address = getOutboundIP()
	}

	return &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: address,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           "http://" + net.JoinHostPort(address, strconv.Itoa(cfg.Port)) + "/health",
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
}

// Register registers a service with Consul
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	registration := Registration(cfg)

	if err := c.agent.ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.log.Info("registered service",
		"name", registration.Name,
		"id", registration.ID,
		"address", registration.Address,
		"port", registration.Port,
	)
	return nil
}

// Deregister removes a service from Consul
func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.agent.ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.log.Info("deregistered service", "id", serviceID)
	return nil
}
