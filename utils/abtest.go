package utils

import (
	"errors"
	"fmt"
	"hash/fnv"

	"gorm.io/gorm"

	"leadflow/models"
)

// VariantAssigner resolves the script variant for a lead when an active A/B
// test exists for the campaign+channel. A nil variant means no active test;
// the caller falls back to the campaign default script. The returned tag
// identifies the assignment for later outcome attribution.
type VariantAssigner interface {
	Assign(campaignID uint, channel models.Channel, leadID uint) (*models.ABVariant, string, error)
}

// DBVariantAssigner looks up active tests in the database and picks a variant
// deterministically per lead, so webhook retries and re-dispatches land on
// the same script.
type DBVariantAssigner struct {
	DB *gorm.DB
}

func NewDBVariantAssigner(db *gorm.DB) *DBVariantAssigner {
	return &DBVariantAssigner{DB: db}
}

func (a *DBVariantAssigner) Assign(campaignID uint, channel models.Channel, leadID uint) (*models.ABVariant, string, error) {
	var test models.ABTest
	err := a.DB.Where("campaign_id = ? AND channel = ? AND is_active = ?", campaignID, channel, true).
		First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if len(test.Variants) == 0 {
		return nil, "", nil
	}

	variant := test.Variants[pickVariant(test.ID, leadID, len(test.Variants))]
	tag := fmt.Sprintf("%s:%s", test.Name, variant.Name)
	return &variant, tag, nil
}

// pickVariant buckets a lead into one of n variants with an FNV hash over
// the test and lead ids.
func pickVariant(testID, leadID uint, n int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d", testID, leadID)
	return int(h.Sum32() % uint32(n))
}
