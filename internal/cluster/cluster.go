// Package cluster builds the crawler's three-tier topology: one master,
// F farmers, and W workers per farmer, and splits the communication
// channels the way the original MPI program splits its communicators --
// a master<->farmers channel set all farmers share, and one private
// farmer<->workers channel set per farmer so dispatching work inside a
// farm never races with master<->farmer traffic.
//
// Grounded on original_source/sem02/src/main.cpp's MPI_Comm_split call
// (color 0 for the master's noop group, color N for farmer N's group).
// No MPI-equivalent library exists anywhere in the retrieval pack, so
// the split is modeled with transport.Hub instances rather than OS
// processes: one Hub per farm plus one shared Hub for the master tier.
package cluster

import (
	"fmt"

	"github.com/cametumbling/sitecrawler/internal/transport"
)

// ConfigError reports a cluster that cannot be started because its
// topology is invalid (zero farmers or zero workers per farmer).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cluster: config error: %s", e.Reason)
}

// Topology describes the requested process counts.
type Topology struct {
	Farmers          int
	WorkersPerFarmer int
}

// TotalProcesses returns the required process count 1 + F + F*W.
func (t Topology) TotalProcesses() int {
	return 1 + t.Farmers + t.Farmers*t.WorkersPerFarmer
}

// Validate rejects a topology with zero farmers or zero workers per
// farmer.
func (t Topology) Validate() error {
	if t.Farmers <= 0 {
		return &ConfigError{Reason: "farmer count must be at least 1"}
	}
	if t.WorkersPerFarmer <= 0 {
		return &ConfigError{Reason: "workers-per-farmer must be at least 1"}
	}
	return nil
}

// Farm is one farmer's private communicator: the farmer is rank 0 within
// it, and its W workers are ranks 1..W, mirroring the original's
// per-farm sub-communicator in which the farmer occupies rank 0 and is
// skipped by the dispatch cursor.
type Farm struct {
	Hub     *transport.Hub
	Workers int
}

// Cluster is the fully wired topology: the shared master<->farmers Hub
// (master is rank 0, farmer i is rank i) plus one Farm per farmer.
type Cluster struct {
	Topology  Topology
	MasterHub *transport.Hub
	Farms     []*Farm
}

// New validates topology and wires a Cluster of in-process Hubs for it.
func New(topology Topology) (*Cluster, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}

	c := &Cluster{
		Topology:  topology,
		MasterHub: transport.NewHub(),
		Farms:     make([]*Farm, topology.Farmers),
	}

	for i := range c.Farms {
		c.Farms[i] = &Farm{
			Hub:     transport.NewHub(),
			Workers: topology.WorkersPerFarmer,
		}
	}

	return c, nil
}

// MasterEndpoint returns the master's view of the master<->farmers
// channel (rank 0).
func (c *Cluster) MasterEndpoint() transport.Endpoint {
	return c.MasterHub.Endpoint(0)
}

// FarmerMasterEndpoint returns farmer index i's view of the
// master<->farmers channel (rank i+1).
func (c *Cluster) FarmerMasterEndpoint(i int) transport.Endpoint {
	return c.MasterHub.Endpoint(i + 1)
}

// FarmerWorkersEndpoint returns farmer index i's view of its own private
// farmer<->workers channel (rank 0 within that farm).
func (c *Cluster) FarmerWorkersEndpoint(i int) transport.Endpoint {
	return c.Farms[i].Hub.Endpoint(0)
}

// WorkerEndpoint returns worker rank (1..W) within farmer index i's
// private channel.
func (c *Cluster) WorkerEndpoint(i int, workerRank int) transport.Endpoint {
	return c.Farms[i].Hub.Endpoint(workerRank)
}
