package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteBackend is the backend of an unprivileged process: it has neither
// file access nor direct write access, so collections go through the
// privileged process's CRUD endpoint and participant lists are kept in a
// local ParticipantCache.
type RemoteBackend struct {
	baseURL     string
	client      *http.Client
	cache       ParticipantCache
	collections []string
}

func NewRemoteBackend(baseURL string, client *http.Client, cache ParticipantCache) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cache == nil {
		cache = NewMemoryParticipantCache()
	}
	return &RemoteBackend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		cache:       cache,
		collections: []string{CollectionEvents, CollectionRooms},
	}
}

func (b *RemoteBackend) ReloadOnRead() bool { return true }

func (b *RemoteBackend) endpoint(collection string) string {
	return b.baseURL + "/api/store/" + url.PathEscape(collection)
}

func (b *RemoteBackend) Load(ctx context.Context) (Document, error) {
	doc := make(Document, len(b.collections))
	for _, name := range b.collections {
		recs, err := b.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		doc[name] = recs
	}

	cached, err := b.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("participant cache: %w", err)
	}
	for _, room := range doc[CollectionRooms] {
		if ps, ok := cached[room.ID()]; ok {
			room[fieldParticipants] = ps
		}
	}
	return doc, nil
}

func (b *RemoteBackend) fetch(ctx context.Context, collection string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint(collection), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", collection, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var recs []Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Save pushes the rooms collection. Lectures only change through the
// privileged process's lecture operations, so any other collection is
// refused before a request is made.
func (b *RemoteBackend) Save(ctx context.Context, doc Document, collection string) error {
	if collection != CollectionRooms {
		return fmt.Errorf("push %s: %w", collection, ErrReadOnly)
	}
	recs := doc[collection]
	if recs == nil {
		recs = []Record{}
	}
	body, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.endpoint(collection), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("push %s: %w", collection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push %s: status %d: %s", collection, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Flush writes the participant lists of every room to the local cache.
func (b *RemoteBackend) Flush(ctx context.Context, doc Document) error {
	byRoom := make(map[string][]any)
	for _, room := range doc[CollectionRooms] {
		ps := asSlice(room[fieldParticipants])
		if len(ps) == 0 {
			continue
		}
		byRoom[room.ID()] = ps
	}
	return b.cache.Save(ctx, byRoom)
}
