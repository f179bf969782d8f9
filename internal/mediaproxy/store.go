package mediaproxy

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Store is the local registry of survey coordinates and instance
// attachments consulted on a cache miss.
type Store interface {
	SurveyInfoProvider
	AttachmentProvider
	PutSurvey(ctx context.Context, surveyID string, s Survey) error
	PutAttachments(ctx context.Context, instanceID string, attachments map[string]string) error
	Close() error
}

// OpenStore opens the backend selected by cfg.Store.Driver.
func OpenStore(cfg Config) (Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		return newRedisStore(cfg.Store.Redis.Address, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	default:
		return newLevelStore(cfg.Store.Path)
	}
}

type surveyRecord struct {
	OpenRosaServer string
	OpenRosaID     string
}

// levelStore keeps records under "s:<surveyID>" and "i:<instanceID>".
type levelStore struct {
	db *leveldb.DB
}

func newLevelStore(path string) (*levelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &levelStore{db: db}, nil
}

func (l *levelStore) SurveyInfo(_ context.Context, surveyID string) (Survey, error) {
	b, err := l.db.Get([]byte("s:"+surveyID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Survey{}, ErrSurveyNotFound
	}
	if err != nil {
		return Survey{}, err
	}
	var rec surveyRecord
	if err := decodeGob(b, &rec); err != nil {
		return Survey{}, fmt.Errorf("decode survey %q: %w", surveyID, err)
	}
	return Survey{OpenRosaServer: rec.OpenRosaServer, OpenRosaID: rec.OpenRosaID}, nil
}

func (l *levelStore) Attachments(_ context.Context, instanceID string) (map[string]string, error) {
	b, err := l.db.Get([]byte("i:"+instanceID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	var atts map[string]string
	if err := decodeGob(b, &atts); err != nil {
		return nil, fmt.Errorf("decode instance %q: %w", instanceID, err)
	}
	return atts, nil
}

func (l *levelStore) PutSurvey(_ context.Context, surveyID string, s Survey) error {
	b, err := encodeGob(surveyRecord{OpenRosaServer: s.OpenRosaServer, OpenRosaID: s.OpenRosaID})
	if err != nil {
		return err
	}
	return l.db.Put([]byte("s:"+surveyID), b, nil)
}

func (l *levelStore) PutAttachments(_ context.Context, instanceID string, attachments map[string]string) error {
	if attachments == nil {
		attachments = map[string]string{}
	}
	b, err := encodeGob(attachments)
	if err != nil {
		return err
	}
	return l.db.Put([]byte("i:"+instanceID), b, nil)
}

func (l *levelStore) Close() error {
	return l.db.Close()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
