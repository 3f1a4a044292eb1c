package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"reading-study-service/internal/domain"
)

// DefinitionLoader fetches study definitions from a backing store (collaborator API, Postgres).
type DefinitionLoader interface {
	LoadDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error)
}

// DefinitionRepository caches definitions in Redis and falls back to a loader on cache miss.
// Definitions are stored as JSON: SET study:{studyID}:definition {json} EX ttl
type DefinitionRepository struct {
	client *redis.Client
	loader DefinitionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewDefinitionRepository(client *redis.Client, loader DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DefinitionRepository) GetDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error) {
	key := r.key(studyID)
	if def, ok := r.fromCache(ctx, key); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(studyID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if def, ok := r.fromCache(ctx, key); ok {
			return def, nil
		}

		def, err := r.loader.LoadDefinition(ctx, studyID)
		if err != nil {
			return domain.StudyDefinition{}, err
		}
		if err := def.Validate(); err != nil {
			return domain.StudyDefinition{}, err
		}

		raw, err := json.Marshal(def)
		if err != nil {
			return domain.StudyDefinition{}, fmt.Errorf("marshal definition: %w", err)
		}
		// best-effort: a failed cache write only costs a reload
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			slog.Warn("definition cache write failed", "study_id", studyID, "error", err)
		}
		return def, nil
	})
	if err != nil {
		return domain.StudyDefinition{}, err
	}
	return result.(domain.StudyDefinition), nil
}

func (r *DefinitionRepository) fromCache(ctx context.Context, key string) (domain.StudyDefinition, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.StudyDefinition{}, false
	}
	var def domain.StudyDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.StudyDefinition{}, false
	}
	if def.Validate() != nil {
		return domain.StudyDefinition{}, false
	}
	return def, true
}

func (r *DefinitionRepository) key(studyID string) string {
	return "study:" + studyID + ":definition"
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
