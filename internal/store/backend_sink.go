package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// DocumentSink stores one JSON array per collection in an external database.
type DocumentSink interface {
	LoadDocument(ctx context.Context) (map[string]json.RawMessage, error)
	SaveCollection(ctx context.Context, collection string, data json.RawMessage) error
}

// SinkBackend is the privileged backend when the document lives in a database
// instead of on the local disk.
type SinkBackend struct {
	sink DocumentSink
}

func NewSinkBackend(sink DocumentSink) *SinkBackend {
	return &SinkBackend{sink: sink}
}

func (b *SinkBackend) Load(ctx context.Context) (Document, error) {
	raw, err := b.sink.LoadDocument(ctx)
	if err != nil {
		return nil, err
	}
	doc := make(Document, len(raw))
	for name, data := range raw {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		doc[name] = recs
	}
	return doc, nil
}

func (b *SinkBackend) Save(ctx context.Context, doc Document, collection string) error {
	recs := doc[collection]
	if recs == nil {
		recs = []Record{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return b.sink.SaveCollection(ctx, collection, data)
}
