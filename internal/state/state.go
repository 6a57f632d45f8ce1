package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/logger"
	"dataset-engine/internal/metrics"
	"dataset-engine/internal/models"
	"dataset-engine/internal/preprocess"
)

var (
	ErrNotFound      = errors.New("dataset not found")
	ErrNotProcessed  = errors.New("dataset has not been processed")
	ErrRunInProgress = errors.New("preprocessing is already running for this dataset")
	// ErrStaleRun is returned when the dataset was edited while a run was in
	// flight; the run's output is discarded.
	ErrStaleRun = errors.New("dataset changed while processing")
)

// Persister stores dataset inputs across restarts
type Persister interface {
	SaveDataset(ctx context.Context, d *models.ProcessedDataset) error
	LoadDataset(ctx context.Context, id string) (*models.ProcessedDataset, error)
	ListDatasets(ctx context.Context) ([]models.DatasetSummary, error)
	// DeleteDataset reports whether a stored dataset was removed
	DeleteDataset(ctx context.Context, id string) (bool, error)
}

// ResultCache holds finished runs keyed by a hash of their inputs
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*preprocess.Result, bool, error)
	SetResult(ctx context.Context, key string, result *preprocess.Result) error
}

type entry struct {
	dataset *models.ProcessedDataset
	result  *preprocess.Result
	running bool
}

// Store holds every loaded dataset. Published *ProcessedDataset values are
// never mutated; each edit stores a fresh clone.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	defaults models.PreprocessingConfig

	persister Persister
	cache     ResultCache
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithCache(c ResultCache) Option {
	return func(s *Store) { s.cache = c }
}

func NewStore(defaults models.PreprocessingConfig, opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]*entry),
		defaults: defaults,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create analyzes the columns of a freshly loaded table and registers it
// with the default config.
func (s *Store) Create(ctx context.Context, name string, headers []string, rows []models.RawRow) (*models.ProcessedDataset, error) {
	if len(headers) == 0 {
		return nil, &preprocess.ConfigurationError{Problems: []string{fmt.Sprintf("dataset %q has no columns", name)}}
	}

	now := time.Now().UTC()
	d := &models.ProcessedDataset{
		ID:                  uuid.New().String(),
		DatasetName:         name,
		Original:            rows,
		Headers:             headers,
		Columns:             analysis.AnalyzeColumns(rows, headers),
		PreprocessingConfig: s.defaults,
		TotalRows:           len(rows),
		TotalColumns:        len(headers),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.persist(ctx, d); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[d.ID] = &entry{dataset: d}
	metrics.DatasetsLoaded.Set(float64(len(s.entries)))
	s.mu.Unlock()

	logger.Info("Dataset created",
		logger.Dataset(d.ID),
		zap.String("name", name),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(headers)),
	)
	return d, nil
}

// Get returns the current snapshot, loading it from the persister when it is
// not in memory.
func (s *Store) Get(ctx context.Context, id string) (*models.ProcessedDataset, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e.dataset, nil
	}

	if s.persister == nil {
		return nil, ErrNotFound
	}
	d, err := s.persister.LoadDataset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.dataset, nil
	}
	s.entries[id] = &entry{dataset: d}
	metrics.DatasetsLoaded.Set(float64(len(s.entries)))
	return d, nil
}

// List returns loaded and persisted datasets, most recently updated first
func (s *Store) List(ctx context.Context) ([]models.DatasetSummary, error) {
	byID := make(map[string]models.DatasetSummary)
	if s.persister != nil {
		persisted, err := s.persister.ListDatasets(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range persisted {
			byID[p.ID] = p
		}
	}

	s.mu.RLock()
	for id, e := range s.entries {
		byID[id] = models.DatasetSummary{
			ID:          id,
			Name:        e.dataset.DatasetName,
			IsProcessed: e.dataset.IsProcessed,
			UpdatedAt:   e.dataset.UpdatedAt,
		}
	}
	s.mu.RUnlock()

	out := make([]models.DatasetSummary, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// SetRole changes the role of one column. Promoting a column to target
// demotes the previous target to feature and updates the config.
func (s *Store) SetRole(ctx context.Context, id, column string, role models.ColumnRole) (*models.ProcessedDataset, error) {
	if !role.Valid() {
		return nil, &preprocess.ConfigurationError{Problems: []string{fmt.Sprintf("unknown column role %q", role)}}
	}

	return s.edit(ctx, id, func(d *models.ProcessedDataset) error {
		col := models.FindColumn(d.Columns, column)
		if col == nil {
			return &preprocess.ConfigurationError{Problems: []string{fmt.Sprintf("column %q does not exist", column)}}
		}

		switch role {
		case models.RoleTarget:
			setTarget(d, column)
		case models.RoleFeature, models.RoleIgnore:
			col.Role = role
			if d.PreprocessingConfig.TargetColumn == column {
				d.PreprocessingConfig.TargetColumn = ""
			}
		}
		return nil
	})
}

// UpdateConfig merges a partial config into the dataset's config
func (s *Store) UpdateConfig(ctx context.Context, id string, patch models.ConfigPatch) (*models.ProcessedDataset, error) {
	return s.edit(ctx, id, func(d *models.ProcessedDataset) error {
		previous := d.PreprocessingConfig.TargetColumn
		d.PreprocessingConfig = d.PreprocessingConfig.Apply(patch)

		target := d.PreprocessingConfig.TargetColumn
		if target == previous {
			return nil
		}
		if target == "" {
			if col := models.FindColumn(d.Columns, previous); col != nil {
				col.Role = models.RoleFeature
			}
			return nil
		}
		if models.FindColumn(d.Columns, target) == nil {
			return &preprocess.ConfigurationError{Problems: []string{fmt.Sprintf("target column %q does not exist", target)}}
		}
		setTarget(d, target)
		return nil
	})
}

func setTarget(d *models.ProcessedDataset, column string) {
	for i := range d.Columns {
		c := &d.Columns[i]
		switch {
		case c.Name == column:
			c.Role = models.RoleTarget
		case c.Role == models.RoleTarget:
			c.Role = models.RoleFeature
		}
	}
	d.PreprocessingConfig.TargetColumn = column
}

// edit applies fn to a clone of the current snapshot and publishes it. The
// previous splits stay visible but the dataset is marked unprocessed.
func (s *Store) edit(ctx context.Context, id string, fn func(d *models.ProcessedDataset) error) (*models.ProcessedDataset, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	next := e.dataset.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next.IsProcessed = false
	next.UpdatedAt = time.Now().UTC()
	e.dataset = next
	s.mu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Process runs the preprocessing pipeline on the current snapshot. A failed
// run leaves the previously published splits untouched.
func (s *Store) Process(ctx context.Context, id string) (*models.ProcessedDataset, *preprocess.Result, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if e.running {
		s.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}
	e.running = true
	snapshot := e.dataset
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result, cached, err := s.run(ctx, snapshot)
	metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProcessTotal.WithLabelValues("error").Inc()
		logger.Warn("Preprocessing failed", logger.Dataset(id), zap.Error(err))
		return nil, nil, err
	}
	if cached {
		metrics.ProcessTotal.WithLabelValues("cached").Inc()
	} else {
		metrics.ProcessTotal.WithLabelValues("success").Inc()
	}
	metrics.RowsDropped.WithLabelValues("missing").Add(float64(result.RemovedRows))
	metrics.RowsDropped.WithLabelValues("non_finite").Add(float64(result.DroppedRows))

	next := snapshot.Clone()
	next.Cleaned = result.Cleaned
	train := result.Train
	validation := result.Validation
	test := result.Test
	next.TrainData = &train
	next.ValidationData = &validation
	next.TestData = &test
	next.TaskType = result.TaskType
	next.TargetClasses = result.TargetClasses
	next.YOneHot = result.YOneHot
	next.IsProcessed = true
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.dataset != snapshot {
		return nil, nil, ErrStaleRun
	}
	e.dataset = next
	e.result = result
	return next, result, nil
}

func (s *Store) run(ctx context.Context, d *models.ProcessedDataset) (*preprocess.Result, bool, error) {
	if s.cache == nil {
		result, err := preprocess.Process(d.Original, d.Columns, d.PreprocessingConfig)
		return result, false, err
	}

	key, err := CacheKey(d)
	if err != nil {
		return nil, false, err
	}
	if result, ok, err := s.cache.GetResult(ctx, key); err != nil {
		logger.Warn("Result cache lookup failed", logger.Dataset(d.ID), logger.Run(key), zap.Error(err))
	} else if ok {
		metrics.CacheHits.Inc()
		return result, true, nil
	}
	metrics.CacheMisses.Inc()

	result, err := preprocess.Process(d.Original, d.Columns, d.PreprocessingConfig)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.SetResult(ctx, key, result); err != nil {
		logger.Warn("Result cache store failed", logger.Dataset(d.ID), logger.Run(key), zap.Error(err))
	}
	return result, false, nil
}

// CacheKey hashes everything a run depends on
func CacheKey(d *models.ProcessedDataset) (string, error) {
	payload := struct {
		Headers []string                   `json:"headers"`
		Rows    []models.RawRow            `json:"rows"`
		Columns []models.ColumnInfo        `json:"columns"`
		Config  models.PreprocessingConfig `json:"config"`
	}{d.Headers, d.Original, d.Columns, d.PreprocessingConfig}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to hash dataset: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Result returns the last successful run of a processed dataset
func (s *Store) Result(ctx context.Context, id string) (*models.ProcessedDataset, *preprocess.Result, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	e := s.entries[id]
	s.mu.RUnlock()
	if e == nil || !d.IsProcessed || e.result == nil {
		return d, nil, ErrNotProcessed
	}
	return d, e.result, nil
}

// Transformer replays preprocessing for inference. It reuses the last run
// when the dataset is processed and otherwise recomputes from the original
// rows.
func (s *Store) Transformer(ctx context.Context, id string, featureNames []string) (*preprocess.InstanceTransformer, error) {
	d, result, err := s.Result(ctx, id)
	if err == nil {
		return preprocess.NewInstanceTransformer(result, d.Columns, featureNames), nil
	}
	if !errors.Is(err, ErrNotProcessed) {
		return nil, err
	}
	return preprocess.Replicate(d.Original, d.Columns, d.PreprocessingConfig, featureNames)
}

// Clear drops a dataset from memory and from the persister
func (s *Store) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	metrics.DatasetsLoaded.Set(float64(len(s.entries)))
	s.mu.Unlock()

	if s.persister != nil {
		deleted, err := s.persister.DeleteDataset(ctx, id)
		if err != nil {
			return err
		}
		ok = ok || deleted
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Store) persist(ctx context.Context, d *models.ProcessedDataset) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveDataset(ctx, d); err != nil {
		return fmt.Errorf("failed to persist dataset %s: %w", d.ID, err)
	}
	return nil
}
