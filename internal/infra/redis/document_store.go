package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"live-quiz-service/internal/docstore"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Hidden bookkeeping fields. They never appear in snapshots.
const (
	markerField   = "__doc"
	revisionField = "__rev"
)

const maxTxRetries = 64

// DocumentStore keeps each document as one Redis hash.
//
//	HSET  {prefix}doc:{path} {field} {json}    document fields
//	SADD  {prefix}collection:{name} {path}     per-collection index used by Query
//	PUBLISH {prefix}doc:{path} {revision}      change notification after every commit
//
// Conditional updates run as WATCH/MULTI transactions and increments use HINCRBY, so
// concurrent writers on one document never lose each other's updates.
type DocumentStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	resync time.Duration
}

// DocumentStoreOption customizes a DocumentStore.
type DocumentStoreOption func(*DocumentStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) DocumentStoreOption {
	return func(s *DocumentStore) { s.prefix = prefix }
}

// WithResyncInterval makes subscribers poll for missed notifications, e.g. after a
// dropped pub/sub connection. Zero disables polling.
func WithResyncInterval(d time.Duration) DocumentStoreOption {
	return func(s *DocumentStore) { s.resync = d }
}

func NewDocumentStore(client *redis.Client, ttl time.Duration, opts ...DocumentStoreOption) *DocumentStore {
	s := &DocumentStore{
		client: client,
		prefix: "quiz:",
		ttl:    ttl,
		resync: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentStore) Create(ctx context.Context, path string, doc docstore.Document) error {
	key := s.key(path)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return unavailable(err)
		}
		if n > 0 {
			return docstore.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeAll(ctx, pipe, path, doc)
			return nil
		})
		return err
	})
}

func (s *DocumentStore) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	snap, _, err := s.load(ctx, s.client, path)
	if err != nil {
		return snap, err
	}
	if !snap.Exists {
		return snap, docstore.ErrNotFound
	}
	return snap, nil
}

func (s *DocumentStore) Replace(ctx context.Context, path string, doc docstore.Document) error {
	key := s.key(path)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		// Carry the revision over the DEL so subscribers see the replacement as a change.
		rev, err := tx.HGet(ctx, key, revisionField).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return unavailable(err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if rev > 0 {
				pipe.HSet(ctx, key, revisionField, rev)
			}
			s.writeAll(ctx, pipe, path, doc)
			return nil
		})
		return err
	})
}

func (s *DocumentStore) Update(ctx context.Context, path string, conds []docstore.Condition, ops ...docstore.Op) error {
	key := s.key(path)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		snap, _, err := s.load(ctx, tx, path)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return docstore.ErrNotFound
		}
		if err := docstore.CheckAll(snap.Fields, conds); err != nil {
			return err
		}
		// Dry run to reject increments on non-integer fields before anything is written.
		if err := docstore.Apply(snap.Fields.Clone(), ops); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range ops {
				switch op.Kind {
				case docstore.OpSet:
					pipe.HSet(ctx, key, op.Field, string(op.Value))
				case docstore.OpIncrement:
					pipe.HIncrBy(ctx, key, op.Field, op.Delta)
				}
			}
			s.touch(ctx, pipe, path)
			return nil
		})
		return err
	})
}

func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(path))
		pipe.SRem(ctx, s.collectionKey(docstore.Collection(path)), path)
		pipe.Publish(ctx, s.key(path), "deleted")
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, collection, field string, value any) ([]docstore.Snapshot, error) {
	cond := docstore.Equals(field, value)
	paths, err := s.client.SMembers(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sort.Strings(paths)

	var out []docstore.Snapshot
	for _, path := range paths {
		snap, _, err := s.load(ctx, s.client, path)
		if err != nil {
			return nil, err
		}
		if !snap.Exists {
			// Expired documents leave their index entry behind.
			_ = s.client.SRem(ctx, s.collectionKey(collection), path).Err()
			continue
		}
		if cond.Holds(snap.Fields) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Subscribe listens on the document's channel and re-reads the hash on every
// notification, so callers always get the latest committed state rather than a replay.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, fn func(docstore.Snapshot)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.key(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, unavailable(err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	lastRev := int64(-1)
	deliver := func() {
		snap, rev, err := s.load(subCtx, s.client, path)
		if err != nil {
			if subCtx.Err() == nil {
				log.Warn().Err(err).Str("path", path).Msg("document refresh failed")
			}
			return
		}
		if rev == lastRev && lastRev >= 0 {
			return
		}
		lastRev = rev
		fn(snap)
	}

	deliver()

	go func() {
		defer pubsub.Close()
		var tick <-chan time.Time
		if s.resync > 0 {
			ticker := time.NewTicker(s.resync)
			defer ticker.Stop()
			tick = ticker.C
		}
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				drain(ch)
				deliver()
			case <-tick:
				deliver()
			}
		}
	}()
	return cancel, nil
}

func (s *DocumentStore) writeAll(ctx context.Context, pipe redis.Pipeliner, path string, doc docstore.Document) {
	key := s.key(path)
	values := make([]any, 0, len(doc)*2+2)
	values = append(values, markerField, "1")
	for field, raw := range doc {
		values = append(values, field, string(raw))
	}
	pipe.HSet(ctx, key, values...)
	pipe.SAdd(ctx, s.collectionKey(docstore.Collection(path)), path)
	s.touch(ctx, pipe, path)
}

// touch bumps the revision, refreshes the TTL and notifies subscribers.
func (s *DocumentStore) touch(ctx context.Context, pipe redis.Pipeliner, path string) {
	key := s.key(path)
	pipe.HIncrBy(ctx, key, revisionField, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.Publish(ctx, key, "changed")
}

func (s *DocumentStore) load(ctx context.Context, c redis.Cmdable, path string) (docstore.Snapshot, int64, error) {
	vals, err := c.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return docstore.Snapshot{Path: path}, 0, unavailable(err)
	}
	snap := docstore.Snapshot{Path: path, Fields: docstore.Document{}}
	if len(vals) == 0 {
		return snap, 0, nil
	}
	snap.Exists = true
	var rev int64
	for field, v := range vals {
		switch field {
		case markerField:
		case revisionField:
			rev, _ = strconv.ParseInt(v, 10, 64)
		default:
			snap.Fields[field] = json.RawMessage(v)
		}
	}
	return snap, rev, nil
}

// watch runs fn as an optimistic transaction on key, retrying with jittered backoff
// while other writers keep invalidating the WATCH.
func (s *DocumentStore) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxTxRetries), ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: too much contention on %s", docstore.ErrUnavailable, key)
	}
	return unavailable(err)
}

func (s *DocumentStore) key(path string) string {
	return s.prefix + "doc:" + path
}

func (s *DocumentStore) collectionKey(collection string) string {
	return s.prefix + "collection:" + collection
}

func drain(ch <-chan *redis.Message) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func isDocstoreErr(err error) bool {
	return errors.Is(err, docstore.ErrNotFound) ||
		errors.Is(err, docstore.ErrAlreadyExists) ||
		errors.Is(err, docstore.ErrConditionFailed) ||
		errors.Is(err, docstore.ErrNotInteger) ||
		errors.Is(err, docstore.ErrUnavailable)
}

func unavailable(err error) error {
	if err == nil || isDocstoreErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
}
