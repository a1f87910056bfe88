package naming

import "sync"

// claimTable tracks output paths handed out during this run, keyed by the
// task that owns them. Two tasks resolving to the same not-yet-rendered
// path would otherwise both see it as free. All methods are goroutine-safe.
type claimTable struct {
	mu     sync.Mutex
	owners map[string]string // output path -> owning task id
}

func newClaimTable() *claimTable {
	return &claimTable{owners: make(map[string]string)}
}

// takenByOther reports whether path is claimed by a task other than owner.
func (c *claimTable) takenByOther(owner, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.owners[path]
	return ok && o != owner
}

// claim records owner for path. It fails when another task holds the path.
func (c *claimTable) claim(owner, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.owners[path]; ok && o != owner {
		return false
	}
	c.owners[path] = owner
	return true
}

// release drops every path held by owner.
func (c *claimTable) release(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, o := range c.owners {
		if o == owner {
			delete(c.owners, path)
		}
	}
}
