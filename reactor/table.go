package reactor

// ConnectionState is the per connection record. It owns its fd
// exclusively once accepted.
type ConnectionState struct {
	fd     int
	ip     string
	buf    []byte
	mode   TriggerMode
	closed bool
}

func newConnectionState(fd int, ip string, bufferSize int, mode TriggerMode) *ConnectionState {
	return &ConnectionState{
		fd:   fd,
		ip:   ip,
		buf:  make([]byte, bufferSize),
		mode: mode,
	}
}

// Fd returns the file descriptor of the connection.
func (c *ConnectionState) Fd() int {
	return c.fd
}

// Ip returns the peer address of the connection, empty for non inet peers.
func (c *ConnectionState) Ip() string {
	return c.ip
}

func (c *ConnectionState) Mode() TriggerMode {
	return c.mode
}

// ConnectionTable maps a descriptor to its connection state.
// It is owned by the dispatcher goroutine and is not safe for concurrent use.
type ConnectionTable struct {
	conns map[int]*ConnectionState
}

func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{conns: make(map[int]*ConnectionState)}
}

// Insert adds c and reports false if its fd is already tracked.
func (t *ConnectionTable) Insert(c *ConnectionState) bool {
	if _, ok := t.conns[c.fd]; ok {
		return false
	}
	t.conns[c.fd] = c
	return true
}

func (t *ConnectionTable) Lookup(fd int) (*ConnectionState, bool) {
	c, ok := t.conns[fd]
	return c, ok
}

func (t *ConnectionTable) Remove(fd int) {
	delete(t.conns, fd)
}

func (t *ConnectionTable) Len() int {
	return len(t.conns)
}

// Range calls fn for every tracked connection until fn returns false.
// fn may remove the connection it is given.
func (t *ConnectionTable) Range(fn func(c *ConnectionState) bool) {
	for _, c := range t.conns {
		if !fn(c) {
			return
		}
	}
}
