package repository

import (
	"errors"

	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeadRepository 线索数据访问接口
type LeadRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormLeadRepository
	Create(lead *models.Lead) error
	GetByID(id uint) (*models.Lead, error)
	GetByIDForUpdate(id uint) (*models.Lead, error)
	Update(lead *models.Lead) error
	Delete(id uint) error
	List(filter LeadListFilter) ([]models.Lead, int64, error)
	CountByStatus() (map[string]int64, error)
}

// GormLeadRepository GORM 实现
type GormLeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository 创建线索仓库
func NewLeadRepository(db *gorm.DB) *GormLeadRepository {
	return &GormLeadRepository{db: db}
}

// Transaction 执行事务
func (r *GormLeadRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormLeadRepository) WithTx(tx *gorm.DB) *GormLeadRepository {
	if tx == nil {
		return r
	}
	return &GormLeadRepository{db: tx}
}

// Create 创建线索
func (r *GormLeadRepository) Create(lead *models.Lead) error {
	return r.db.Create(lead).Error
}

// GetByID 根据 ID 获取线索
func (r *GormLeadRepository) GetByID(id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

// GetByIDForUpdate 根据 ID 获取线索并加行锁（需在事务内调用）
func (r *GormLeadRepository) GetByIDForUpdate(id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

// Update 更新线索
func (r *GormLeadRepository) Update(lead *models.Lead) error {
	return r.db.Save(lead).Error
}

// Delete 删除线索（软删除）
func (r *GormLeadRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.Lead{}, id).Error
}

// List 线索列表
func (r *GormLeadRepository) List(filter LeadListFilter) ([]models.Lead, int64, error) {
	query := r.db.Model(&models.Lead{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		condition, argCount := buildSearchLikeCondition(r.db, []string{
			"name",
			"email",
			"company",
		})
		if argCount > 0 {
			query = query.Where(condition, repeatLikeArgs(like, argCount)...)
		}
	}
	if filter.AssignedAdminID > 0 {
		query = query.Where("assigned_admin_id = ?", filter.AssignedAdminID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var leads []models.Lead
	if err := query.Order("id DESC").Find(&leads).Error; err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// CountByStatus 按状态统计线索数
func (r *GormLeadRepository) CountByStatus() (map[string]int64, error) {
	type countRow struct {
		Status string
		Total  int64
	}
	var rows []countRow
	err := r.db.Model(&models.Lead{}).
		Select("status, COUNT(*) as total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}
