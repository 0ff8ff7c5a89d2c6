package file

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

// RecordRepository keeps records under records/<model>/<id>.json.
type RecordRepository struct {
	store *jsonStore
	mu    *sync.RWMutex
}

func collectionFor(model string) string {
	return "records/" + model
}

func (rr *RecordRepository) Create(_ context.Context, model string, data map[string]any) (*models.Record, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.create(model, data)
}

func (rr *RecordRepository) create(model string, data map[string]any) (*models.Record, error) {
	now := time.Now().UTC()
	record := &models.Record{
		ID:        uuid.NewString(),
		Model:     model,
		Data:      withoutID(data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if id, ok := data["id"].(string); ok && id != "" {
		record.ID = id
	}

	if err := rr.store.write(collectionFor(model), record.ID, record); err != nil {
		return nil, persistence.NewRecordError("Create", model, err)
	}

	return record, nil
}

func (rr *RecordRepository) Update(_ context.Context, model string, where, data map[string]any) (*models.Record, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(where) == 0 {
		return nil, persistence.NewRecordError("Update", model, persistence.ErrInvalidWhere)
	}

	record, err := rr.first(model, where)
	if err != nil {
		return nil, persistence.NewRecordError("Update", model, err)
	}

	if record == nil {
		return nil, persistence.NewRecordError("Update", model, persistence.ErrRecordNotFound)
	}

	return rr.merge(record, data)
}

func (rr *RecordRepository) Upsert(_ context.Context, model string, where, create, update map[string]any) (*models.Record, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(where) == 0 {
		return nil, persistence.NewRecordError("Upsert", model, persistence.ErrInvalidWhere)
	}

	record, err := rr.first(model, where)
	if err != nil {
		return nil, persistence.NewRecordError("Upsert", model, err)
	}

	if record == nil {
		return rr.create(model, create)
	}

	return rr.merge(record, update)
}

func (rr *RecordRepository) Delete(_ context.Context, model string, where map[string]any) (*models.Record, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(where) == 0 {
		return nil, persistence.NewRecordError("Delete", model, persistence.ErrInvalidWhere)
	}

	record, err := rr.first(model, where)
	if err != nil {
		return nil, persistence.NewRecordError("Delete", model, err)
	}

	if record == nil {
		return nil, persistence.NewRecordError("Delete", model, persistence.ErrRecordNotFound)
	}

	if err := rr.store.remove(collectionFor(model), record.ID); err != nil && !errors.Is(err, errNotExist) {
		return nil, persistence.NewRecordError("Delete", model, err)
	}

	return record, nil
}

func (rr *RecordRepository) FindMany(_ context.Context, model string, where map[string]any, take int) ([]*models.Record, error) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	records, err := rr.matching(model, where)
	if err != nil {
		return nil, persistence.NewRecordError("FindMany", model, err)
	}

	if take > 0 && len(records) > take {
		records = records[:take]
	}

	return records, nil
}

func (rr *RecordRepository) FindUnique(_ context.Context, model string, where map[string]any) (*models.Record, error) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	if len(where) == 0 {
		return nil, persistence.NewRecordError("FindUnique", model, persistence.ErrInvalidWhere)
	}

	record, err := rr.first(model, where)
	if err != nil {
		return nil, persistence.NewRecordError("FindUnique", model, err)
	}

	return record, nil
}

func (rr *RecordRepository) merge(record *models.Record, data map[string]any) (*models.Record, error) {
	merged := maps.Clone(record.Data)
	if merged == nil {
		merged = map[string]any{}
	}

	maps.Copy(merged, withoutID(data))
	record.Data = merged
	record.UpdatedAt = time.Now().UTC()

	if err := rr.store.write(collectionFor(record.Model), record.ID, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (rr *RecordRepository) first(model string, where map[string]any) (*models.Record, error) {
	records, err := rr.matching(model, where)
	if err != nil || len(records) == 0 {
		return nil, err
	}

	return records[0], nil
}

// matching returns the records of model matching where, oldest first.
func (rr *RecordRepository) matching(model string, where map[string]any) ([]*models.Record, error) {
	ids, err := rr.store.ids(collectionFor(model))
	if err != nil {
		return nil, err
	}

	var records []*models.Record

	for _, id := range ids {
		var record models.Record
		if err := rr.store.read(collectionFor(model), id, &record); err != nil {
			return nil, err
		}

		if matches(&record, where) {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })

	return records, nil
}

func matches(record *models.Record, where map[string]any) bool {
	for key, want := range where {
		if key == "id" {
			if id, _ := want.(string); id != record.ID {
				return false
			}

			continue
		}

		if !reflect.DeepEqual(record.Data[key], want) {
			return false
		}
	}

	return true
}

func withoutID(data map[string]any) map[string]any {
	out := maps.Clone(data)
	if out == nil {
		return map[string]any{}
	}

	delete(out, "id")

	return out
}
