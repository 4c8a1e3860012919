package models

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderNumberSequence is the transactional counter behind order numbers.
// One row per (prefix, year); the row is taken FOR UPDATE inside the order
// insert transaction, so numbers are monotonic per year and survive process
// restarts. Gaps are possible when an insert rolls back; that is accepted.
type OrderNumberSequence struct {
	Prefix    string    `gorm:"primaryKey;size:10;autoIncrement:false" json:"prefix"`
	Year      int       `gorm:"primaryKey;autoIncrement:false" json:"year"`
	NextNo    int       `gorm:"not null;default:1" json:"next_no"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func orderNumberPrefix() string {
	prefix := strings.TrimSpace(os.Getenv("ORDER_NUMBER_PREFIX"))
	if prefix == "" {
		prefix = "PO"
	}
	return prefix
}

// NextOrderNumber allocates the next number in series for the given year and
// returns it formatted as PREFIX-YEAR-NNNN. Must run inside tx; the counter
// only advances if tx commits.
func NextOrderNumber(tx *gorm.DB, orderDate time.Time) (string, error) {
	prefix := orderNumberPrefix()
	year := orderDate.Year()

	seq := OrderNumberSequence{Prefix: prefix, Year: year}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND year = ?", prefix, year).
		FirstOrCreate(&seq).Error; err != nil {
		return "", err
	}

	number := seq.NextNo
	if err := tx.Model(&OrderNumberSequence{}).
		Where("prefix = ? AND year = ?", prefix, year).
		Update("next_no", gorm.Expr("next_no + 1")).Error; err != nil {
		return "", err
	}

	return FormatOrderNumber(prefix, year, number), nil
}

func FormatOrderNumber(prefix string, year int, number int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, number)
}
