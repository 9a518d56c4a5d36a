package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	search "helios.network/testnetapi/internal/modules/search/service"
	"helios.network/testnetapi/internal/modules/user/dto"
	"helios.network/testnetapi/internal/modules/user/repository"
	xpDto "helios.network/testnetapi/internal/modules/xp/dto"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
	"helios.network/testnetapi/pkg/storage"
	"helios.network/testnetapi/pkg/token"
)

// AvatarUploadWindow is the minimum gap between avatar uploads per user.
const AvatarUploadWindow = time.Minute

var allowedAvatarExt = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

type Config struct {
	SignatureVerification bool
	SignatureDomain       string
	ReferralCodes         []string
	UploadFolder          string
	Levels                leveling.Table
	ContributionLevels    leveling.Table
}

type UserService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error)
	GetProfile(ctx context.Context, wallet string) (*dto.PublicUserResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req dto.UpdateProfileRequest) (*dto.UserResponse, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, file dto.AvatarFile) (*dto.UserResponse, error)
	Stats(ctx context.Context, wallet string) (*dto.StatsResponse, error)
	NFTs(ctx context.Context, wallet string) (*dto.NFTResponse, error)
	LevelInfo(ctx context.Context, userID uuid.UUID) (*xpDto.LevelInfoResponse, error)
	Search(ctx context.Context, query dto.SearchQuery) (*commonDto.Paginated[dto.PublicUserResponse], error)
	Delete(ctx context.Context, userID uuid.UUID) error
	DeleteByWallet(ctx context.Context, wallet string) error
}

type userService struct {
	repo      repository.UserRepository
	search    search.SearchService
	files     storage.FileStorage
	limiter   *ratelimit.Limiter
	tokens    *token.Issuer
	clock     clock.Clock
	sanitizer *bluemonday.Policy
	cfg       Config
}

// NewUserService wires the user service. files may be nil when uploads are
// not configured.
func NewUserService(
	repo repository.UserRepository,
	searchSvc search.SearchService,
	files storage.FileStorage,
	limiter *ratelimit.Limiter,
	tokens *token.Issuer,
	clk clock.Clock,
	cfg Config,
) UserService {
	if clk == nil {
		clk = clock.New()
	}
	if searchSvc == nil {
		searchSvc = search.NewDisabled()
	}
	if cfg.Levels == nil {
		cfg.Levels = leveling.DefaultTable()
	}
	if cfg.ContributionLevels == nil {
		cfg.ContributionLevels = leveling.DefaultContributionTable()
	}
	return &userService{
		repo:      repo,
		search:    searchSvc,
		files:     files,
		limiter:   limiter,
		tokens:    tokens,
		clock:     clk,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
	}
}

func (s *userService) verifySignature(wallet, signature string) error {
	if !s.cfg.SignatureVerification {
		return nil
	}
	err := chain.VerifyPersonalSign(wallet, chain.LoginMessage(s.cfg.SignatureDomain, wallet), signature)
	if err != nil {
		return apperror.New(http.StatusUnauthorized, "signature verification failed", apperror.ErrUnauthorized)
	}
	return nil
}

func (s *userService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	if err := s.verifySignature(wallet, req.Signature); err != nil {
		return nil, err
	}

	var referral *string
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		if !slices.Contains(s.cfg.ReferralCodes, code) {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid referral code")
		}
		referral = &code
	}

	if _, err := s.repo.FindByWallet(ctx, wallet); err == nil {
		return nil, apperror.Wrap(apperror.ErrConflict, "wallet already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := &entity.User{
		WalletAddress:     wallet,
		ReferralCode:      referral,
		Level:             1,
		ContributionLevel: 1,
		ContributorStatus: entity.ContributorNone,
		Status:            entity.AccountActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "wallet already registered")
		}
		return nil, err
	}
	logger.InfoCtx(ctx, "user registered", zap.String("user_id", user.ID.String()), zap.String("wallet", wallet))
	s.reindex(ctx, user)

	return s.authResponse(user)
}

func (s *userService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	if err := s.verifySignature(wallet, req.Signature); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "wallet not registered")
		}
		return nil, err
	}
	if user.Status != entity.AccountActive {
		return nil, apperror.Wrap(apperror.ErrForbidden, fmt.Sprintf("account is %s", user.Status))
	}

	now := s.clock.Now()
	user.LastLoginAt = &now
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return s.authResponse(user)
}

func (s *userService) authResponse(user *entity.User) (*dto.AuthResponse, error) {
	signed, expiresAt, err := s.tokens.Issue(user.ID, user.WalletAddress, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
		User:        dto.ToUserResponse(user),
	}, nil
}

func (s *userService) findByWallet(ctx context.Context, wallet string) (*entity.User, error) {
	normalized, err := chain.NormalizeAddress(wallet)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	user, err := s.repo.FindByWallet(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) Me(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.ToUserResponse(user), nil
}

func (s *userService) GetProfile(ctx context.Context, wallet string) (*dto.PublicUserResponse, error) {
	user, err := s.findByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	res := dto.ToPublicUserResponse(user)
	return &res, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, req dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if len(username) < 3 || len(username) > 30 {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "username must be between 3 and 30 characters")
		}
		existing, err := s.repo.FindByUsername(ctx, username)
		if err == nil && existing.ID != user.ID {
			return nil, apperror.Wrap(apperror.ErrConflict, "username already taken")
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user.Username = &username
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		user.Email = &email
	}
	if req.AvatarURL != nil {
		user.AvatarURL = req.AvatarURL
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(s.sanitizer.Sanitize(*req.Bio))
		user.Bio = &bio
	}
	if req.SocialLinks != nil {
		raw, err := json.Marshal(req.SocialLinks)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid social links")
		}
		user.SocialLinks = datatypes.JSON(raw)
	}

	if err := s.repo.Save(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "username already taken")
		}
		return nil, err
	}
	s.reindex(ctx, user)
	return dto.ToUserResponse(user), nil
}

func (s *userService) UploadAvatar(ctx context.Context, userID uuid.UUID, file dto.AvatarFile) (*dto.UserResponse, error) {
	if s.files == nil {
		return nil, apperror.Wrap(apperror.ErrExternalService, storage.ErrNotConfigured.Error())
	}
	ext := strings.ToLower(filepath.Ext(file.FileName))
	if !slices.Contains(allowedAvatarExt, ext) {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "avatar must be a jpg, png, gif or webp image")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID, "avatar_upload", AvatarUploadWindow)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperror.Wrap(apperror.ErrRateLimitExceeded, "please wait before uploading another avatar")
		}
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.files.Upload(ctx, file.Reader, s.cfg.UploadFolder+"/avatars", user.ID.String()+ext)
	if err != nil {
		return nil, apperror.New(http.StatusBadGateway, "failed to upload avatar", fmt.Errorf("%w: %v", apperror.ErrExternalService, err))
	}

	previous := user.AvatarURL
	user.AvatarURL = &url
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	if previous != nil && *previous != url {
		if err := s.files.Delete(ctx, *previous); err != nil {
			logger.WarnCtx(ctx, "failed to delete previous avatar", zap.Error(err))
		}
	}
	return dto.ToUserResponse(user), nil
}

func (s *userService) Stats(ctx context.Context, wallet string) (*dto.StatsResponse, error) {
	user, err := s.findByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &dto.StatsResponse{
		WalletAddress:      user.WalletAddress,
		XP:                 user.XP,
		Level:              user.Level,
		ContributionXP:     user.ContributionXP,
		OnboardingProgress: len(user.OnboardingSteps),
		ContributorStatus:  string(user.ContributorStatus),
		NFTCount:           len(user.MintedNFTs),
	}, nil
}

func (s *userService) NFTs(ctx context.Context, wallet string) (*dto.NFTResponse, error) {
	user, err := s.findByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &dto.NFTResponse{
		WalletAddress: user.WalletAddress,
		NFTs:          append([]string{}, user.MintedNFTs...),
	}, nil
}

func (s *userService) LevelInfo(ctx context.Context, userID uuid.UUID) (*xpDto.LevelInfoResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &xpDto.LevelInfoResponse{
		Status:            s.cfg.Levels.Status(user.XP),
		ContributionXP:    user.ContributionXP,
		ContributionLevel: s.cfg.ContributionLevels.LevelFor(user.ContributionXP),
	}, nil
}

func (s *userService) Search(ctx context.Context, query dto.SearchQuery) (*commonDto.Paginated[dto.PublicUserResponse], error) {
	page := query.PageQuery.Normalize()
	desc := query.SortOrder != "asc"

	var (
		users []entity.User
		total int64
		err   error
	)
	if s.search.Enabled() && query.Query != "" {
		users, total, err = s.searchIndex(ctx, query.Query, query.SortBy, desc, page)
		if err != nil {
			logger.WarnCtx(ctx, "search index unavailable, falling back to database", zap.Error(err))
		}
	}
	if !s.search.Enabled() || query.Query == "" || err != nil {
		users, total, err = s.repo.List(ctx, repository.UserFilter{
			Query:  query.Query,
			SortBy: query.SortBy,
			Desc:   desc,
			Limit:  page.Limit,
			Offset: page.Offset(),
		})
		if err != nil {
			return nil, err
		}
	}

	data := make([]dto.PublicUserResponse, len(users))
	for i := range users {
		data[i] = dto.ToPublicUserResponse(&users[i])
	}
	return &commonDto.Paginated[dto.PublicUserResponse]{
		Data: data,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

// searchIndex resolves index hits to users, keeping the index order.
func (s *userService) searchIndex(ctx context.Context, q, sortBy string, desc bool, page commonDto.PageQuery) ([]entity.User, int64, error) {
	ids, total, err := s.search.SearchUsers(ctx, search.UserSearchQuery{
		Query:  q,
		SortBy: sortBy,
		Desc:   desc,
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, 0, err
	}
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	byID := make(map[uuid.UUID]entity.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]entity.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, total, nil
}

func (s *userService) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return err
	}
	if err := s.search.DeleteUser(ctx, userID); err != nil {
		logger.WarnCtx(ctx, "failed to remove user from search index", zap.Error(err))
	}
	logger.InfoCtx(ctx, "user deleted", zap.String("user_id", userID.String()))
	return nil
}

func (s *userService) DeleteByWallet(ctx context.Context, wallet string) error {
	user, err := s.findByWallet(ctx, wallet)
	if err != nil {
		return err
	}
	return s.Delete(ctx, user.ID)
}

// reindex keeps the search document current. Index failures never fail the
// request; the periodic reindex job repairs drift.
func (s *userService) reindex(ctx context.Context, user *entity.User) {
	if err := s.search.IndexUser(ctx, user); err != nil {
		logger.WarnCtx(ctx, "failed to index user", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}
