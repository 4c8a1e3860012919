package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// Item is the purchasable catalog entry. Service items never touch stock or
// the inventory ledger; only Material items do.
type Item struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Sku           string    `gorm:"size:100;uniqueIndex;not null" json:"sku" binding:"required"`
	Name          string    `gorm:"size:100;not null" json:"name" binding:"required"`
	ItemType      ItemType  `gorm:"type:enum('Material','Service');default:Material" json:"item_type"`
	UnitOfMeasure string    `gorm:"size:20" json:"unit_of_measure"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Sku           string   `json:"sku" binding:"required" validate:"required"`
	Name          string   `json:"name" binding:"required" validate:"required"`
	ItemType      ItemType `json:"item_type"`
	UnitOfMeasure string   `json:"unit_of_measure"`
}

func (input *NewItem) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Item](ctx, "sku", input.Sku, id); err != nil {
		return utils.NewValidationError("sku", "duplicate sku")
	}
	if input.ItemType != "" {
		if _, err := ParseItemType(string(input.ItemType)); err != nil {
			return utils.NewValidationError("item_type", "invalid item type")
		}
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	itemType := input.ItemType
	if itemType == "" {
		itemType = ItemTypeMaterial
	}

	item := Item{
		Sku:           input.Sku,
		Name:          input.Name,
		ItemType:      itemType,
		UnitOfMeasure: input.UnitOfMeasure,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, utils.NewNotFoundError("item", id)
	}
	return item, nil
}

func GetItems(ctx context.Context, name *string) ([]*Item, error) {
	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ? OR sku LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}
	if err := dbCtx.Order("sku").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
