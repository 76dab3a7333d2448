// Package network carries messages between machines over TCP.
package network

import (
	"fmt"
	"net"
	"strconv"
)

// A Topology derives every machine's listening address from a shared base
// port. All machines of a run must use the same topology.
type Topology struct {
	Host        string
	BasePort    int
	NumMachines int
}

// A Peer is another machine reachable from the local one.
type Peer struct {
	ID   int
	Addr string
}

// Validate checks that every machine of the topology gets a usable port.
func (t Topology) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidTopology)
	}

	if t.NumMachines < 1 {
		return fmt.Errorf("%w: %d machines", ErrInvalidTopology, t.NumMachines)
	}

	if t.BasePort < 1 || t.BasePort+t.NumMachines-1 > 65535 {
		return fmt.Errorf("%w: base port %d cannot host %d machines",
			ErrInvalidTopology, t.BasePort, t.NumMachines)
	}

	return nil
}

// Addr returns the listening address of the given machine.
func (t Topology) Addr(id int) string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.BasePort+id))
}

// Peers returns all machines other than self, ordered by ID.
func (t Topology) Peers(self int) []Peer {
	peers := make([]Peer, 0, t.NumMachines)

	for id := 0; id < t.NumMachines; id++ {
		if id == self {
			continue
		}

		peers = append(peers, Peer{ID: id, Addr: t.Addr(id)})
	}

	return peers
}
