package reminders

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Registry remembers which triggers are installed.
type Registry interface {
	Put(t Trigger) error
	Delete(identifier string) error
	List() ([]Trigger, error)
}

const registryPrefix = "trigger:"

// BadgerRegistry persists triggers as JSON under "trigger:<identifier>".
type BadgerRegistry struct {
	db *badger.DB
}

func NewBadgerRegistry(db *badger.DB) *BadgerRegistry {
	return &BadgerRegistry{db: db}
}

func (r *BadgerRegistry) Put(t Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trigger %s: %w", t.Identifier, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(registryPrefix+t.Identifier), data)
	})
}

// Delete is a no-op for unknown identifiers.
func (r *BadgerRegistry) Delete(identifier string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(registryPrefix + identifier))
	})
}

// List returns triggers ordered by identifier.
func (r *BadgerRegistry) List() ([]Trigger, error) {
	var triggers []Trigger
	prefix := []byte(registryPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(v []byte) error {
				var t Trigger
				if err := json.Unmarshal(v, &t); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				triggers = append(triggers, t)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return triggers, err
}

// MemoryRegistry keeps triggers in a map. Nothing survives a restart.
type MemoryRegistry struct {
	mu       sync.Mutex
	triggers map[string]Trigger
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{triggers: make(map[string]Trigger)}
}

func (r *MemoryRegistry) Put(t Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[t.Identifier] = t
	return nil
}

func (r *MemoryRegistry) Delete(identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.triggers, identifier)
	return nil
}

func (r *MemoryRegistry) List() ([]Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
