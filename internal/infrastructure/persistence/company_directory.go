package persistence

import (
	"context"

	"github.com/supplychain/backend/internal/domain/partner"
	"gorm.io/gorm"
)

// DefaultCompanyTable is the registration subsystem's company table
const DefaultCompanyTable = "companies"

// GormCompanyDirectory reads display names from the company registration
// table. Addresses are matched case-insensitively.
type GormCompanyDirectory struct {
	db    *gorm.DB
	table string
}

// NewGormCompanyDirectory creates a directory over table. The table name must
// be a trusted identifier; config validation enforces this.
func NewGormCompanyDirectory(db *gorm.DB, table string) *GormCompanyDirectory {
	if table == "" {
		table = DefaultCompanyTable
	}
	return &GormCompanyDirectory{db: db, table: table}
}

// ResolveName implements partner.CompanyDirectory
func (d *GormCompanyDirectory) ResolveName(ctx context.Context, address string) (string, bool, error) {
	var names []string
	if err := d.db.WithContext(ctx).
		Table(d.table).
		Where("LOWER(address) = ?", partner.NormalizeAddress(address)).
		Limit(1).
		Pluck("name", &names).Error; err != nil {
		return "", false, err
	}
	if len(names) == 0 {
		return "", false, nil
	}
	return names[0], true, nil
}

var _ partner.CompanyDirectory = (*GormCompanyDirectory)(nil)
