package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
)

const (
	usersIndex   = "users"
	reindexBatch = 200
)

// UserSearchQuery is a full-text query against the users index.
type UserSearchQuery struct {
	Query  string
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

// SearchService keeps the users index in sync and queries it. When
// Enabled reports false callers fall back to the database.
type SearchService interface {
	Enabled() bool
	IndexUser(ctx context.Context, user *entity.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SearchUsers(ctx context.Context, q UserSearchQuery) ([]uuid.UUID, int64, error)
	Reindex(ctx context.Context) (int, error)
}

// sortFields maps api sort keys to index attributes.
var sortFields = map[string]string{
	"xp":             "xp",
	"level":          "level",
	"createdAt":      "created_at",
	"wallet":         "wallet_address",
	"contributorTag": "contributor_tag",
	"contributionXP": "contribution_xp",
}

type meiliUserDoc struct {
	ID                string `json:"id"`
	WalletAddress     string `json:"wallet_address"`
	Username          string `json:"username"`
	Bio               string `json:"bio"`
	ContributorTag    string `json:"contributor_tag"`
	ContributorStatus string `json:"contributor_status"`
	Status            string `json:"status"`
	XP                int    `json:"xp"`
	Level             int    `json:"level"`
	ContributionXP    int    `json:"contribution_xp"`
	CreatedAt         int64  `json:"created_at"`
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	users     userRepo.UserRepository
	sanitizer *bluemonday.Policy
}

// NewMeiliSearchService returns a disabled service when host is empty.
func NewMeiliSearchService(host, apiKey string, users userRepo.UserRepository) SearchService {
	if host == "" {
		logger.Warn("meilisearch host not configured, user search uses the database")
		return disabled{}
	}
	s := &meiliSearchService{
		client:    meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		users:     users,
		sanitizer: newSanitizer(),
	}
	s.initIndex()
	return s
}

func (s *meiliSearchService) initIndex() {
	filterable := []any{"contributor_status", "status", "level"}
	if _, err := s.client.Index(usersIndex).UpdateFilterableAttributes(&filterable); err != nil {
		logger.Warn("failed to update users filterable attributes", zap.Error(err))
	}

	sortable := make([]string, 0, len(sortFields))
	for _, attr := range sortFields {
		sortable = append(sortable, attr)
	}
	if _, err := s.client.Index(usersIndex).UpdateSortableAttributes(&sortable); err != nil {
		logger.Warn("failed to update users sortable attributes", zap.Error(err))
	}
	logger.Info("meilisearch users index initialized")
}

func (s *meiliSearchService) Enabled() bool { return true }

func (s *meiliSearchService) cleanText(content string) string {
	content = strings.ReplaceAll(content, "</p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	clean := html.UnescapeString(s.sanitizer.Sanitize(content))
	return strings.Join(strings.Fields(clean), " ")
}

func (s *meiliSearchService) toDoc(u *entity.User) meiliUserDoc {
	return meiliUserDoc{
		ID:                u.ID.String(),
		WalletAddress:     u.WalletAddress,
		Username:          deref(u.Username),
		Bio:               s.cleanText(deref(u.Bio)),
		ContributorTag:    deref(u.ContributorTag),
		ContributorStatus: string(u.ContributorStatus),
		Status:            string(u.Status),
		XP:                u.XP,
		Level:             u.Level,
		ContributionXP:    u.ContributionXP,
		CreatedAt:         u.CreatedAt.Unix(),
	}
}

func (s *meiliSearchService) IndexUser(ctx context.Context, user *entity.User) error {
	task, err := s.client.Index(usersIndex).AddDocuments([]meiliUserDoc{s.toDoc(user)}, strPtr("id"))
	if err != nil {
		return fmt.Errorf("index user: %w", err)
	}
	logger.FromContext(ctx).Debug("indexed user", zap.String("user_id", user.ID.String()), zap.Int64("task_uid", task.TaskUID))
	return nil
}

func (s *meiliSearchService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.client.Index(usersIndex).DeleteDocument(id.String()); err != nil {
		return fmt.Errorf("delete user document: %w", err)
	}
	return nil
}

func (s *meiliSearchService) SearchUsers(ctx context.Context, q UserSearchQuery) ([]uuid.UUID, int64, error) {
	req := &meilisearch.SearchRequest{
		Limit:                int64(q.Limit),
		Offset:               int64(q.Offset),
		AttributesToRetrieve: []string{"id"},
	}
	if attr, ok := sortFields[q.SortBy]; ok {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		req.Sort = []string{attr + ":" + dir}
	}

	raw, err := s.client.Index(usersIndex).SearchRaw(q.Query, req)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	return decodeHits(*raw)
}

func decodeHits(raw json.RawMessage) ([]uuid.UUID, int64, error) {
	var body struct {
		Hits []struct {
			ID string `json:"id"`
		} `json:"hits"`
		EstimatedTotalHits int64 `json:"estimatedTotalHits"`
		TotalHits          int64 `json:"totalHits"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(body.Hits))
	for _, h := range body.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	total := body.TotalHits
	if total == 0 {
		total = body.EstimatedTotalHits
	}
	return ids, total, nil
}

// Reindex pushes every user to the index in batches.
func (s *meiliSearchService) Reindex(ctx context.Context) (int, error) {
	indexed := 0
	for offset := 0; ; offset += reindexBatch {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		users, _, err := s.users.List(ctx, userRepo.UserFilter{
			SortBy: "createdAt",
			Limit:  reindexBatch,
			Offset: offset,
		})
		if err != nil {
			return indexed, fmt.Errorf("list users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		docs := make([]meiliUserDoc, len(users))
		for i := range users {
			docs[i] = s.toDoc(&users[i])
		}
		if _, err := s.client.Index(usersIndex).AddDocuments(docs, strPtr("id")); err != nil {
			return indexed, fmt.Errorf("index batch: %w", err)
		}
		indexed += len(docs)
		if len(users) < reindexBatch {
			break
		}
	}
	logger.InfoCtx(ctx, "users reindexed", zap.Int("count", indexed))
	return indexed, nil
}

type disabled struct{}

// NewDisabled returns a service that indexes nothing.
func NewDisabled() SearchService { return disabled{} }

func (disabled) Enabled() bool                                 { return false }
func (disabled) IndexUser(context.Context, *entity.User) error { return nil }
func (disabled) DeleteUser(context.Context, uuid.UUID) error   { return nil }
func (disabled) Reindex(context.Context) (int, error)          { return 0, nil }
func (disabled) SearchUsers(context.Context, UserSearchQuery) ([]uuid.UUID, int64, error) {
	return nil, 0, nil
}

func newSanitizer() *bluemonday.Policy {
	return bluemonday.StrictPolicy()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	return &s
}
