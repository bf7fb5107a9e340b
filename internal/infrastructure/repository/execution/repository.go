package execution

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/infrastructure/database/entities"
	"toolhub/services/conversion-api/utils/platformerrors"
)

// Repository persists execution records. State-changing updates are guarded
// UPDATE statements over the status column; RowsAffected carries the
// compare-and-swap outcome so a racing duplicate callback can never rewrite
// a terminal record.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, exec *domain.Execution) error {
	params, err := marshalParameters(exec.Parameters)
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeInternal,
			"failed to encode execution parameters",
			err,
			"b4c1f7a2-9d3e-4c6b-8a5f-1e2d3c4b5a69",
		)
	}

	entity := entities.Execution{
		ID:         exec.ID,
		ToolName:   exec.ToolName,
		Category:   exec.Category,
		Status:     exec.Status.String(),
		InputRef:   exec.InputRef,
		Parameters: params,
		CreatedAt:  exec.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create execution record",
			err,
			"6d8e2a4f-1b3c-4d5e-9f7a-8c6b5d4e3f20",
		)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	var entity entities.Execution
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"execution not found",
				err,
				"f2a9c5d7-3e1b-4a8c-b6d4-5f7e9a1c3b52",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to get execution by id",
			err,
			"a7b3d9e1-5c2f-4b8d-9e6a-2c4f6b8d0e37",
		)
	}
	return mapEntity(entity)
}

func (r *Repository) MarkProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Execution{}).
		Where("id = ? AND status = ?", id, domain.StatusPending.String()).
		Updates(map[string]any{
			"status":     domain.StatusProcessing.String(),
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark execution processing",
			result.Error,
			"c8d4e6f2-7a1b-4c3d-8e5f-9b2a4c6d8e14",
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) Finalize(ctx context.Context, id string, update domain.CallbackUpdate, completedAt time.Time, durationSeconds float64) (bool, error) {
	values := map[string]any{
		"status":           update.Status.String(),
		"completed_at":     completedAt,
		"duration_seconds": durationSeconds,
	}
	if update.Status == domain.StatusCompleted {
		values["output_ref"] = update.OutputRef
		values["output_bytes"] = update.OutputBytes
	} else {
		values["error_message"] = update.ErrorMessage
		values["error_detail"] = update.ErrorDetail
	}

	result := r.db.WithContext(ctx).
		Model(&entities.Execution{}).
		Where("id = ? AND status NOT IN ?", id, []string{
			domain.StatusCompleted.String(),
			domain.StatusFailed.String(),
		}).
		Updates(values)
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to finalize execution",
			result.Error,
			"e1f3a5b7-9c2d-4e6f-8a1b-3c5d7e9f1a28",
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error) {
	var rows []entities.Execution
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending.String(), cutoff).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list pending executions",
			err,
			"d5e7f9a1-3b2c-4d6e-8f1a-5c7e9b1d3f46",
		)
	}

	executions := make([]*domain.Execution, 0, len(rows))
	for _, row := range rows {
		exec, err := mapEntity(row)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, nil
}

func marshalParameters(params map[string]string) (datatypes.JSON, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func mapEntity(entity entities.Execution) (*domain.Execution, error) {
	var params map[string]string
	if len(entity.Parameters) > 0 {
		if err := json.Unmarshal(entity.Parameters, &params); err != nil {
			return nil, err
		}
	}

	return &domain.Execution{
		ID:              entity.ID,
		ToolName:        entity.ToolName,
		Category:        entity.Category,
		Status:          domain.Status(entity.Status),
		InputRef:        entity.InputRef,
		OutputRef:       entity.OutputRef,
		OutputBytes:     entity.OutputBytes,
		Parameters:      params,
		ErrorMessage:    entity.ErrorMessage,
		ErrorDetail:     entity.ErrorDetail,
		CreatedAt:       entity.CreatedAt,
		StartedAt:       entity.StartedAt,
		CompletedAt:     entity.CompletedAt,
		DurationSeconds: entity.DurationSeconds,
	}, nil
}
