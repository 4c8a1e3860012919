package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// Project carries the denormalized financial aggregates. The materials
// figures are derived from orders and the inventory ledger; the travel
// figures are maintained by the travel workflow through the same delta
// contract. All four are floored at zero.
type Project struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	Name               string          `gorm:"size:255;uniqueIndex;not null" json:"name" binding:"required"`
	MaterialsReceived  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"materials_received"`
	MaterialsCommitted decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"materials_committed"`
	TravelApproved     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"travel_approved"`
	TravelPending      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"travel_pending"`
	IsActive           *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Name string `json:"name" binding:"required" validate:"required"`
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Project](ctx, "name", input.Name, ""); err != nil {
		return nil, utils.NewValidationError("name", "duplicate project name")
	}

	project := Project{
		ID:       uuid.NewString(),
		Name:     input.Name,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(ctx context.Context, id string) (*Project, error) {
	project, err := utils.FetchModelByUid[Project](ctx, id)
	if err != nil {
		return nil, utils.NewNotFoundError("project", id)
	}
	return project, nil
}

func GetProjects(ctx context.Context) ([]*Project, error) {
	db := config.GetDB()
	var results []*Project
	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ProjectNameIdMap returns name -> id for every project, used by the
// reference-normalization repair to resolve legacy name-keyed rows.
func ProjectNameIdMap(tx *gorm.DB) (map[string]string, error) {
	type row struct {
		ID   string
		Name string
	}
	var rows []row
	if err := tx.Model(&Project{}).Select("id", "name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.Name] = r.ID
	}
	return m, nil
}

// lockProject loads the project row FOR UPDATE inside tx.
func lockProject(tx *gorm.DB, projectId string) (*Project, error) {
	var project Project
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", projectId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("project", projectId)
		}
		return nil, err
	}
	return &project, nil
}

// ApplyProjectDelta adds amount (may be negative) to one aggregate field
// under row lock. Results are floored at zero: historical data predating the
// ledger can otherwise drive committed figures negative during receptions.
func ApplyProjectDelta(tx *gorm.DB, projectId string, field ProjectAggregateField, amount decimal.Decimal) error {
	if !field.Valid() {
		return utils.NewValidationError("field", "unknown project aggregate field")
	}
	if amount.IsZero() {
		return nil
	}

	project, err := lockProject(tx, projectId)
	if err != nil {
		return err
	}

	var current decimal.Decimal
	switch field {
	case ProjectFieldMaterialsReceived:
		current = project.MaterialsReceived
	case ProjectFieldMaterialsCommitted:
		current = project.MaterialsCommitted
	case ProjectFieldTravelApproved:
		current = project.TravelApproved
	case ProjectFieldTravelPending:
		current = project.TravelPending
	}

	next := current.Add(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}

	return tx.Model(&Project{}).Where("id = ?", projectId).
		Update(string(field), next).Error
}

// ProjectAggregateSums is a full set of recomputed figures.
type ProjectAggregateSums struct {
	MaterialsReceived  decimal.Decimal
	MaterialsCommitted decimal.Decimal
	TravelApproved     *decimal.Decimal
	TravelPending      *decimal.Decimal
}

// RecomputeProjectAggregates overwrites the stored aggregates with freshly
// derived sums. Travel figures are only overwritten when provided; the
// materials rebuild has no business recomputing travel.
func RecomputeProjectAggregates(tx *gorm.DB, projectId string, sums ProjectAggregateSums) error {
	if _, err := lockProject(tx, projectId); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"materials_received":  nonNegative(sums.MaterialsReceived),
		"materials_committed": nonNegative(sums.MaterialsCommitted),
	}
	if sums.TravelApproved != nil {
		updates["travel_approved"] = nonNegative(*sums.TravelApproved)
	}
	if sums.TravelPending != nil {
		updates["travel_pending"] = nonNegative(*sums.TravelPending)
	}

	return tx.Model(&Project{}).Where("id = ?", projectId).
		Updates(updates).Error
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
