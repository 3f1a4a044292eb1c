package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"reading-study-service/internal/domain"
)

// DefinitionLoader fetches study definitions from a backing store (collaborator API, Postgres, file).
type DefinitionLoader interface {
	LoadDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error)
}

// DefinitionRepository caches definitions with TTL to avoid refetching for every participant.
type DefinitionRepository struct {
	loader DefinitionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def       domain.StudyDefinition
	expiresAt time.Time
}

func NewDefinitionRepository(loader DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDefinition),
	}
}

func (r *DefinitionRepository) GetDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error) {
	if def, ok := r.lookup(studyID); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(studyID, func() (interface{}, error) {
		if def, ok := r.lookup(studyID); ok {
			return def, nil
		}

		def, err := r.loader.LoadDefinition(ctx, studyID)
		if err != nil {
			return domain.StudyDefinition{}, err
		}
		// Invalid definitions are not cached so a fixed upstream is picked up on the next session.
		if err := def.Validate(); err != nil {
			return domain.StudyDefinition{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 {
			r.mu.Lock()
			r.cache[studyID] = cachedDefinition{def: def, expiresAt: r.clock().Add(ttl)}
			r.mu.Unlock()
		}
		return def, nil
	})
	if err != nil {
		return domain.StudyDefinition{}, err
	}
	return result.(domain.StudyDefinition), nil
}

func (r *DefinitionRepository) lookup(studyID string) (domain.StudyDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[studyID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.StudyDefinition{}, false
	}
	return entry.def, true
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticDefinitionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticDefinitionLoader struct {
	definitions map[string]domain.StudyDefinition
}

func NewStaticDefinitionLoader(definitions map[string]domain.StudyDefinition) *StaticDefinitionLoader {
	return &StaticDefinitionLoader{definitions: definitions}
}

func (l *StaticDefinitionLoader) LoadDefinition(_ context.Context, studyID string) (domain.StudyDefinition, error) {
	if def, ok := l.definitions[studyID]; ok {
		return def, nil
	}
	return domain.StudyDefinition{}, domain.ErrStudyNotFound
}
