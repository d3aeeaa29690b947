package apiclient

import "sync"

// Assignment はキャッシュ上の学校の割り当て。
// Pendingはサーバー応答待ちの楽観的な値であることを示す。
type Assignment struct {
	EntryID    int64
	ListID     int64
	DeadlineID *int64
	Pending    bool
}

// assignmentCache は1ユーザー分の学校ID→割り当てのキャッシュ。
// invalidate後は次のLists呼び出しまで無効になる。
type assignmentCache struct {
	mu      sync.RWMutex
	valid   bool
	entries map[int64]Assignment
}

func newAssignmentCache() *assignmentCache {
	return &assignmentCache{entries: make(map[int64]Assignment)}
}

func (c *assignmentCache) replace(lists []ListWithSchools) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]Assignment)
	for _, l := range lists {
		for _, s := range l.Schools {
			c.entries[s.SchoolID] = Assignment{
				EntryID:    s.EntryID,
				ListID:     l.ListID,
				DeadlineID: s.DeadlineID,
			}
		}
	}
	c.valid = true
}

func (c *assignmentCache) get(schoolID int64) (Assignment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return Assignment{}, false
	}
	a, ok := c.entries[schoolID]
	return a, ok
}

func (c *assignmentCache) set(schoolID int64, a Assignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		c.entries[schoolID] = a
	}
}

func (c *assignmentCache) removeEntry(entryID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for schoolID, a := range c.entries {
		if a.EntryID == entryID {
			delete(c.entries, schoolID)
		}
	}
}

func (c *assignmentCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.entries = make(map[int64]Assignment)
}

func (c *assignmentCache) isValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid
}
