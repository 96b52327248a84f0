package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentModel struct {
	Name      string `gorm:"primaryKey;size:191"`
	Payload   []byte
	UpdatedAt time.Time
}

func (documentModel) TableName() string {
	return "documents"
}

type gormBackend struct {
	db *gorm.DB
}

// NewGormStore keeps documents as rows of a single table, for the sqlite and
// postgres storage drivers.
func NewGormStore(db *gorm.DB, enc Encrypter) (*DocumentStore, error) {
	if err := db.AutoMigrate(&documentModel{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return newDocumentStore(&gormBackend{db: db}, enc), nil
}

func (b *gormBackend) load(ctx context.Context, name string) ([]byte, error) {
	var m documentModel
	err := b.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotExist
	}
	if err != nil {
		return nil, err
	}
	return m.Payload, nil
}

func (b *gormBackend) save(ctx context.Context, name string, payload []byte) error {
	m := documentModel{Name: name, Payload: payload, UpdatedAt: time.Now().UTC()}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&m).Error
}

func (b *gormBackend) remove(ctx context.Context, name string) error {
	res := b.db.WithContext(ctx).Where("name = ?", name).Delete(&documentModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotExist
	}
	return nil
}

func (b *gormBackend) stats(ctx context.Context) (Stats, error) {
	var row struct {
		Documents int
		Bytes     int64
	}
	err := b.db.WithContext(ctx).Model(&documentModel{}).
		Select("COUNT(*) AS documents, COALESCE(SUM(LENGTH(payload)), 0) AS bytes").
		Scan(&row).Error
	return Stats{Documents: row.Documents, Bytes: row.Bytes}, err
}
