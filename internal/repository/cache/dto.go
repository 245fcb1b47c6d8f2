package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
)

const docVersion = 1

var errBadDocument = errors.New("bad cache document")

// document is the persisted form of a cache entry.
type document struct {
	Version int            `json:"v"`
	Entry   domcache.Entry `json:"entry"`
}

func encodeEntry(e *domcache.Entry) ([]byte, error) {
	data, err := json.Marshal(document{Version: docVersion, Entry: *e})
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (domcache.Entry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domcache.Entry{}, fmt.Errorf("%w: %w", errBadDocument, err)
	}
	if doc.Version != docVersion {
		return domcache.Entry{}, fmt.Errorf("%w: version %d", errBadDocument, doc.Version)
	}
	if doc.Entry.Key.RequesterID == "" || doc.Entry.CreatedAt.IsZero() {
		return domcache.Entry{}, fmt.Errorf("%w: missing key or timestamp", errBadDocument)
	}
	return doc.Entry, nil
}
