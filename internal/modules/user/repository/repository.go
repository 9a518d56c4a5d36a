package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

// UserFilter narrows user listings.
type UserFilter struct {
	Query             string
	ContributorStatus entity.ContributorStatus
	Status            entity.AccountStatus
	TaggedOnly        bool
	SortBy            string
	Desc              bool
	Limit             int
	Offset            int
}

// sortColumns whitelists sortable columns.
var sortColumns = map[string]string{
	"xp":             "xp",
	"level":          "level",
	"createdAt":      "created_at",
	"wallet":         "wallet_address",
	"contributorTag": "contributor_tag",
	"contributionXP": "contribution_xp",
}

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	Save(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByWallet(ctx context.Context, wallet string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.User, error)
	// LockByID reads the row with SELECT ... FOR UPDATE. Only meaningful
	// inside a transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	List(ctx context.Context, filter UserFilter) ([]entity.User, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
	CountWhere(ctx context.Context, query string, args ...any) (int64, error)
	CountWithMoreXP(ctx context.Context, xp int) (int64, error)
	CountTaggedWithMoreContributionXP(ctx context.Context, contributionXP int) (int64, error)
	Aggregate(ctx context.Context) (UserAggregate, error)
	ContributorSummary(ctx context.Context) (ContributorSummary, error)
}

// TagCount is the number of approved contributors holding a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// ContributorSummary aggregates approved contributors.
type ContributorSummary struct {
	TotalContributors     int64      `json:"total_contributors"`
	TotalContributionXP   int64      `json:"total_contribution_xp"`
	AverageContributionXP float64    `json:"average_contribution_xp"`
	ByTag                 []TagCount `json:"by_tag" gorm:"-"`
}

// UserAggregate summarizes the xp held across all users.
type UserAggregate struct {
	TotalUsers            int64   `json:"total_users"`
	TotalXP               int64   `json:"total_xp"`
	AverageXP             float64 `json:"average_xp"`
	MaxXP                 int     `json:"max_xp"`
	TotalContributors     int64   `json:"total_contributors"`
	TotalContributionXP   int64   `json:"total_contribution_xp"`
	AverageContributionXP float64 `json:"average_contribution_xp"`
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	return database.Conn(ctx, r.db).Create(user).Error
}

func (r *userRepository) Save(ctx context.Context, user *entity.User) error {
	return database.Conn(ctx, r.db).Save(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByWallet(ctx context.Context, wallet string) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).
		Where("wallet_address = ?", strings.ToLower(wallet)).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.User, error) {
	var users []entity.User
	if len(ids) == 0 {
		return users, nil
	}
	err := database.Conn(ctx, r.db).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) LockByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]entity.User, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.User{})

	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("wallet_address ILIKE ? OR username ILIKE ? OR contributor_tag ILIKE ?", like, like, like)
	}
	if filter.ContributorStatus != "" {
		query = query.Where("contributor_status = ?", filter.ContributorStatus)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TaggedOnly {
		query = query.Where("contributor_tag IS NOT NULL AND contributor_tag <> ''")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "xp"
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: filter.Desc}).
		Order("created_at ASC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var users []entity.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := database.Conn(ctx, r.db).Delete(&entity.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.User{}).Count(&count).Error
	return count, err
}

func (r *userRepository) CountWhere(ctx context.Context, query string, args ...any) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.User{}).Where(query, args...).Count(&count).Error
	return count, err
}

func (r *userRepository) CountWithMoreXP(ctx context.Context, xp int) (int64, error) {
	return r.CountWhere(ctx, "xp > ?", xp)
}

func (r *userRepository) CountTaggedWithMoreContributionXP(ctx context.Context, contributionXP int) (int64, error) {
	return r.CountWhere(ctx,
		"contributor_tag IS NOT NULL AND contributor_tag <> '' AND contribution_xp > ?", contributionXP)
}

func (r *userRepository) Aggregate(ctx context.Context) (UserAggregate, error) {
	var agg UserAggregate
	err := database.Conn(ctx, r.db).Model(&entity.User{}).
		Select(`COUNT(*) AS total_users,
			COALESCE(SUM(xp), 0) AS total_xp,
			COALESCE(AVG(xp), 0) AS average_xp,
			COALESCE(MAX(xp), 0) AS max_xp,
			COUNT(*) FILTER (WHERE contributor_tag IS NOT NULL AND contributor_tag <> '') AS total_contributors,
			COALESCE(SUM(contribution_xp), 0) AS total_contribution_xp,
			COALESCE(AVG(contribution_xp), 0) AS average_contribution_xp`).
		Scan(&agg).Error
	return agg, err
}

func (r *userRepository) ContributorSummary(ctx context.Context) (ContributorSummary, error) {
	var summary ContributorSummary
	approved := database.Conn(ctx, r.db).Model(&entity.User{}).
		Where("contributor_status = ?", entity.ContributorApproved).
		Session(&gorm.Session{})

	if err := approved.
		Select(`COUNT(*) AS total_contributors,
			COALESCE(SUM(contribution_xp), 0) AS total_contribution_xp,
			COALESCE(AVG(contribution_xp), 0) AS average_contribution_xp`).
		Scan(&summary).Error; err != nil {
		return summary, err
	}

	err := approved.
		Select("COALESCE(contributor_tag, '') AS tag, COUNT(*) AS count").
		Group("contributor_tag").
		Order("count DESC").
		Scan(&summary.ByTag).Error
	return summary, err
}
