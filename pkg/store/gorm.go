package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"trust-pool/pkg/model"
)

// GormStore persists checks, results, nodes and audit entries in a
// relational database (MySQL in production).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func wrapDBErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *GormStore) CheckGet(name string) (model.Check, error) {
	var c model.Check
	if err := s.db.Where("name = ?", name).First(&c).Error; err != nil {
		return model.Check{}, wrapDBErr(err)
	}
	return c, nil
}

func (s *GormStore) CheckGetAll() ([]model.Check, error) {
	var out []model.Check
	if err := s.db.Order("name").Find(&out).Error; err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}

func (s *GormStore) CheckCreate(c model.Check) (model.Check, error) {
	var count int64
	if err := s.db.Model(&model.Check{}).Where("name = ?", c.Name).Count(&count).Error; err != nil {
		return model.Check{}, wrapDBErr(err)
	}
	if count > 0 {
		return model.Check{}, ErrConflict
	}
	if err := s.db.Create(&c).Error; err != nil {
		return model.Check{}, wrapDBErr(err)
	}
	return c, nil
}

func (s *GormStore) CheckUpdate(name string, patch model.CheckPatch) (model.Check, error) {
	var c model.Check
	if err := s.db.Where("name = ?", name).First(&c).Error; err != nil {
		return model.Check{}, wrapDBErr(err)
	}
	updates := map[string]interface{}{}
	if patch.Desc != nil {
		updates["desc"] = *patch.Desc
	}
	if patch.Spacing != nil {
		updates["spacing"] = *patch.Spacing
	}
	if patch.Timeout != nil {
		updates["timeout"] = *patch.Timeout
	}
	if len(updates) > 0 {
		if err := s.db.Model(&c).Updates(updates).Error; err != nil {
			return model.Check{}, wrapDBErr(err)
		}
	}
	if err := s.db.Where("name = ?", name).First(&c).Error; err != nil {
		return model.Check{}, wrapDBErr(err)
	}
	return c, nil
}

func (s *GormStore) CheckDelete(name string) error {
	res := s.db.Where("name = ?", name).Delete(&model.Check{})
	if res.Error != nil {
		return wrapDBErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ResultStore(r model.CheckResult) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return wrapDBErr(s.db.Create(&r).Error)
}

func (s *GormStore) ResultsGet(limit int) ([]model.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.CheckResult
	if err := s.db.Order("timestamp desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}

func (s *GormStore) NodeUpsert(n model.Node) (model.Node, error) {
	var existing model.Node
	err := s.db.Where("host = ?", n.Host).First(&existing).Error
	switch {
	case err == nil:
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
		if err := s.db.Save(&n).Error; err != nil {
			return model.Node{}, wrapDBErr(err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(&n).Error; err != nil {
			return model.Node{}, wrapDBErr(err)
		}
	default:
		return model.Node{}, wrapDBErr(err)
	}
	return n, nil
}

func (s *GormStore) NodeGetAll() ([]model.Node, error) {
	var out []model.Node
	if err := s.db.Order("host").Find(&out).Error; err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}

func (s *GormStore) AppendAudit(e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return wrapDBErr(s.db.Create(&e).Error)
}

func (s *GormStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.AuditEntry
	if err := s.db.Order("timestamp desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}
