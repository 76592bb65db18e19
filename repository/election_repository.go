package repository

import (
	"context"

	"chainvote-backend/models"

	"gorm.io/gorm"
)

// ElectionRepository 选举与候选人数据访问接口
type ElectionRepository interface {
	// CreateWithCandidates 在同一事务中写入选举及其候选人，任一失败则全部回滚
	CreateWithCandidates(ctx context.Context, election *models.Election, candidates []models.Candidate) error
	GetByID(ctx context.Context, id string) (*models.Election, error)
	// List 按创建时间倒序返回全部选举
	List(ctx context.Context) ([]models.Election, error)
	ListByCompany(ctx context.Context, companyID string) ([]models.Election, error)
	ListIDs(ctx context.Context) ([]string, error)

	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error)
	// ListCandidatesFor 用一次 IN 查询取回多个选举的候选人，按选举ID分组
	ListCandidatesFor(ctx context.Context, electionIDs []string) (map[string][]models.Candidate, error)
}

type electionRepository struct {
	db *gorm.DB
}

// NewElectionRepository 创建基于 gorm 的选举仓储
func NewElectionRepository(db *gorm.DB) ElectionRepository {
	return &electionRepository{db: db}
}

func (r *electionRepository) CreateWithCandidates(ctx context.Context, election *models.Election, candidates []models.Candidate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 候选人单独批量插入，避免关联字段被重复保存
		if err := tx.Omit("Candidates").Create(election).Error; err != nil {
			return translate(err, ConflictOther)
		}
		for i := range candidates {
			candidates[i].ElectionID = election.ID
		}
		if err := tx.Create(&candidates).Error; err != nil {
			return translate(err, ConflictOther)
		}
		election.Candidates = candidates
		return nil
	})
}

func (r *electionRepository) GetByID(ctx context.Context, id string) (*models.Election, error) {
	var e models.Election
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err, ConflictOther)
	}
	return &e, nil
}

func (r *electionRepository) List(ctx context.Context) ([]models.Election, error) {
	var elections []models.Election
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&elections).Error
	return elections, err
}

func (r *electionRepository) ListByCompany(ctx context.Context, companyID string) ([]models.Election, error) {
	var elections []models.Election
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&elections).Error
	return elections, err
}

func (r *electionRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Election{}).Pluck("id", &ids).Error
	return ids, err
}

func (r *electionRepository) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, ConflictOther)
	}
	return &c, nil
}

func (r *electionRepository) ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("name ASC").
		Find(&candidates).Error
	return candidates, err
}

func (r *electionRepository) ListCandidatesFor(ctx context.Context, electionIDs []string) (map[string][]models.Candidate, error) {
	grouped := make(map[string][]models.Candidate, len(electionIDs))
	if len(electionIDs) == 0 {
		return grouped, nil
	}

	var candidates []models.Candidate
	err := r.db.WithContext(ctx).
		Where("election_id IN ?", electionIDs).
		Order("name ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		grouped[c.ElectionID] = append(grouped[c.ElectionID], c)
	}
	return grouped, nil
}
