package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentinel/internal/errs"
	"sentinel/internal/infrastructure/persistence/sqlite/model"
	"sentinel/internal/ports"
)

type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *DeliveryRepository) InsertDelivery(ctx context.Context, delivery ports.Delivery) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Delivery{
		DeliveryID:  delivery.DeliveryID,
		IssueNumber: delivery.IssueNumber,
		EventKind:   delivery.EventKind,
		Label:       delivery.Label,
		PayloadSHA:  delivery.PayloadSHA,
		ReceivedAt:  delivery.ReceivedAt,
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return errs.Wrap(result.Error, "insert delivery")
	}
	if result.RowsAffected == 0 {
		return ports.ErrDuplicateDelivery
	}
	return nil
}

func (r *DeliveryRepository) PruneDeliveriesBefore(ctx context.Context, cutoff string) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Where("received_at < ?", cutoff).Delete(&model.Delivery{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "prune deliveries")
	}
	return result.RowsAffected, nil
}

func (r *DeliveryRepository) InsertTaskRun(ctx context.Context, run ports.TaskRun) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.TaskRun{
		RunID:       run.RunID,
		IssueNumber: run.IssueNumber,
		Action:      run.Action,
		Outcome:     run.Outcome,
		Detail:      run.Detail,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert task run")
	}
	return nil
}

func (r *DeliveryRepository) FinishTaskRun(ctx context.Context, runID string, outcome string, detail string, finishedAt string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.TaskRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"outcome":     outcome,
			"detail":      detail,
			"finished_at": finishedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "finish task run")
	}
	if result.RowsAffected == 0 {
		return ports.ErrTaskRunNotFound
	}
	return nil
}

func (r *DeliveryRepository) ListRecentTaskRuns(ctx context.Context, limit int) ([]ports.TaskRun, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var rows []model.TaskRun
	if err := db.Order("started_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query task runs")
	}

	runs := make([]ports.TaskRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, ports.TaskRun{
			RunID:       row.RunID,
			IssueNumber: row.IssueNumber,
			Action:      row.Action,
			Outcome:     row.Outcome,
			Detail:      row.Detail,
			StartedAt:   row.StartedAt,
			FinishedAt:  row.FinishedAt,
		})
	}
	return runs, nil
}
