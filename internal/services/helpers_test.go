package services

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/isdelr/student-records-be/internal/database"
	"gotest.tools/v3/assert"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NilError(t, database.Migrate(db))
	return db
}

type publishedEvent struct {
	Action  string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(action string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Action: action, Payload: payload})
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}
