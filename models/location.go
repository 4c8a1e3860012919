package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

type InventoryLocation struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryLocation struct {
	Name string `json:"name" binding:"required" validate:"required"`
}

func CreateInventoryLocation(ctx context.Context, input *NewInventoryLocation) (*InventoryLocation, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[InventoryLocation](ctx, "name", input.Name, 0); err != nil {
		return nil, utils.NewValidationError("name", "duplicate location name")
	}

	location := InventoryLocation{
		Name:     input.Name,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func GetInventoryLocation(ctx context.Context, id int) (*InventoryLocation, error) {
	location, err := utils.FetchModel[InventoryLocation](ctx, id)
	if err != nil {
		return nil, utils.NewNotFoundError("inventory location", id)
	}
	return location, nil
}

func GetInventoryLocations(ctx context.Context) ([]*InventoryLocation, error) {
	return utils.FetchAllModels[InventoryLocation](ctx)
}
