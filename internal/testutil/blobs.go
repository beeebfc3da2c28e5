package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/sahana-project/ewaste-api/internal/storage"
)

// Objects is an in-memory storage.ObjectStorage.
type Objects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string

	// FailPut makes every Put fail when set.
	FailPut error
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (o *Objects) EnsureBucket(context.Context) error { return nil }

func (o *Objects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if o.FailPut != nil {
		return o.FailPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	o.contentTypes[key] = contentType
	return nil
}

func (o *Objects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(o.objects, key)
	delete(o.contentTypes, key)
	return nil
}

func (o *Objects) Bucket() string { return "memory" }

// Keys lists stored object keys in order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (o *Objects) ContentType(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contentTypes[key]
}

// Events records published listing events.
type Events struct {
	mu     sync.Mutex
	events []mq.ListingEvent

	// Fail makes every publish fail when set.
	Fail bool
}

func (e *Events) PublishListingEvent(_ context.Context, ev mq.ListingEvent) error {
	if e.Fail {
		return errors.New("event bus unavailable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

// Kinds returns the kinds of recorded events in publish order.
func (e *Events) Kinds() []mq.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	kinds := make([]mq.EventKind, 0, len(e.events))
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// Last returns the most recent event.
func (e *Events) Last() (mq.ListingEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return mq.ListingEvent{}, false
	}
	return e.events[len(e.events)-1], true
}
