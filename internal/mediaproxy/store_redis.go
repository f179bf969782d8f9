package mediaproxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// redisStore shares the registry between processes. Surveys live in the hash
// "id:<surveyID>", instances in "in:<instanceID>" with attachments as a JSON
// field.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr, password string, db int) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisStore{client: client}, nil
}

func (r *redisStore) SurveyInfo(ctx context.Context, surveyID string) (Survey, error) {
	vals, err := r.client.HGetAll(ctx, "id:"+surveyID).Result()
	if err != nil {
		return Survey{}, err
	}
	if vals["openRosaServer"] == "" || vals["openRosaId"] == "" {
		return Survey{}, ErrSurveyNotFound
	}
	return Survey{OpenRosaServer: vals["openRosaServer"], OpenRosaID: vals["openRosaId"]}, nil
}

func (r *redisStore) Attachments(ctx context.Context, instanceID string) (map[string]string, error) {
	raw, err := r.client.HGet(ctx, "in:"+instanceID, "instanceAttachments").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	var atts map[string]string
	if err := json.Unmarshal([]byte(raw), &atts); err != nil {
		return nil, fmt.Errorf("decode instance %q: %w", instanceID, err)
	}
	return atts, nil
}

func (r *redisStore) PutSurvey(ctx context.Context, surveyID string, s Survey) error {
	return r.client.HSet(ctx, "id:"+surveyID,
		"openRosaServer", s.OpenRosaServer,
		"openRosaId", s.OpenRosaID,
	).Err()
}

func (r *redisStore) PutAttachments(ctx context.Context, instanceID string, attachments map[string]string) error {
	if attachments == nil {
		attachments = map[string]string{}
	}
	b, err := json.Marshal(attachments)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, "in:"+instanceID, "instanceAttachments", string(b)).Err()
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
