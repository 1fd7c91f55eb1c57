package itemdb

import "fmt"

// UnmappedIDError reports an id with no entry in the item database. The
// translation layer never substitutes a default; callers decide whether
// the condition is fatal (save) or a placeholder warning (load).
type UnmappedIDError struct {
	Space string // "server" or "client"
	ID    uint16
}

func (e *UnmappedIDError) Error() string {
	return fmt.Sprintf("no mapping for %s id %d", e.Space, e.ID)
}

// Mapper translates between the two item identifier spaces. It is built
// once per session from the item database and threaded explicitly through
// every decode/encode call; there is no process-wide mapper state.
type Mapper struct {
	clientToServer map[uint16]uint16
	serverToClient map[uint16]uint16
}

// NewMapper builds a mapper from explicit server→client pairs.
func NewMapper(serverToClient map[uint16]uint16) *Mapper {
	m := &Mapper{
		clientToServer: make(map[uint16]uint16, len(serverToClient)),
		serverToClient: make(map[uint16]uint16, len(serverToClient)),
	}
	for sid, cid := range serverToClient {
		m.serverToClient[sid] = cid
		if _, ok := m.clientToServer[cid]; !ok {
			m.clientToServer[cid] = sid
		}
	}
	return m
}

// ServerToClient resolves a ServerID to its ClientID.
func (m *Mapper) ServerToClient(serverID uint16) (uint16, error) {
	cid, ok := m.serverToClient[serverID]
	if !ok {
		return 0, &UnmappedIDError{Space: "server", ID: serverID}
	}
	return cid, nil
}

// ClientToServer resolves a ClientID to its ServerID.
func (m *Mapper) ClientToServer(clientID uint16) (uint16, error) {
	sid, ok := m.clientToServer[clientID]
	if !ok {
		return 0, &UnmappedIDError{Space: "client", ID: clientID}
	}
	return sid, nil
}

// HasServer reports whether a ServerID can be translated.
func (m *Mapper) HasServer(serverID uint16) bool {
	_, ok := m.serverToClient[serverID]
	return ok
}

// HasClient reports whether a ClientID can be translated.
func (m *Mapper) HasClient(clientID uint16) bool {
	_, ok := m.clientToServer[clientID]
	return ok
}

// Len returns the number of server-side entries.
func (m *Mapper) Len() int { return len(m.serverToClient) }
