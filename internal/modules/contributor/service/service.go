package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	"helios.network/testnetapi/internal/modules/contributor/dto"
	"helios.network/testnetapi/internal/modules/contributor/repository"
	userDto "helios.network/testnetapi/internal/modules/user/dto"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	userService "helios.network/testnetapi/internal/modules/user/service"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	"helios.network/testnetapi/pkg/database"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/storage"
)

const topContributors = 10

var allowedResumeExt = []string{".pdf", ".doc", ".docx"}

// ReviewNotifier is told when an application is decided.
type ReviewNotifier interface {
	NotifyApplicationReviewed(ctx context.Context, userID uuid.UUID, status entity.ApplicationStatus)
}

type ContributorService interface {
	Apply(ctx context.Context, userID uuid.UUID, req dto.ApplyRequest, resume *dto.ResumeFile) (*entity.ContributorApplication, error)
	MyApplication(ctx context.Context, userID uuid.UUID) (*entity.ContributorApplication, error)
	Applications(ctx context.Context, query dto.ApplicationQuery) (*commonDto.Paginated[entity.ContributorApplication], error)
	Review(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.ReviewRequest) (*entity.ContributorApplication, error)
	List(ctx context.Context, page commonDto.PageQuery) (*commonDto.Paginated[dto.ContributorResponse], error)
	Profile(ctx context.Context, id uuid.UUID) (*dto.ContributorResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req userDto.UpdateProfileRequest) (*userDto.UserResponse, error)
	AssignRole(ctx context.Context, actor audit.Actor, req dto.AssignRoleRequest) (*dto.ContributorResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

type Deps struct {
	Transactor   database.Transactor
	Applications repository.ApplicationRepository
	Users        userRepo.UserRepository
	UserService  userService.UserService
	Files        storage.FileStorage
	Audit        *audit.Recorder
	Notifier     ReviewNotifier
	Clock        clock.Clock
	UploadFolder string
}

type contributorService struct {
	deps      Deps
	sanitizer *bluemonday.Policy
}

func NewContributorService(deps Deps) ContributorService {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &contributorService{deps: deps, sanitizer: bluemonday.StrictPolicy()}
}

func (s *contributorService) Apply(ctx context.Context, userID uuid.UUID, req dto.ApplyRequest, resume *dto.ResumeFile) (*entity.ContributorApplication, error) {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ContributorStatus == entity.ContributorApproved {
		return nil, apperror.Wrap(apperror.ErrNotEligible, "you are already an approved contributor")
	}

	existing, err := s.deps.Applications.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Wrap(apperror.ErrConflict, "you have already submitted an application")
	}

	app := &entity.ContributorApplication{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		FullName:      strings.TrimSpace(req.FullName),
		Email:         strings.TrimSpace(req.Email),
		GithubURL:     optional(req.GithubURL),
		LinkedinURL:   optional(req.LinkedinURL),
		Skills:        cleanSkills(req.Skills),
		Motivation:    strings.TrimSpace(s.sanitizer.Sanitize(req.Motivation)),
		Status:        entity.ApplicationPending,
	}

	if resume != nil {
		url, err := s.uploadResume(ctx, user.ID, resume)
		if err != nil {
			return nil, err
		}
		app.ResumeURL = &url
	}

	err = s.deps.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.deps.Applications.Create(ctx, app); err != nil {
			return err
		}
		user.ContributorStatus = entity.ContributorPending
		return s.deps.Users.Save(ctx, user)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "you have already submitted an application")
		}
		return nil, err
	}

	logger.InfoCtx(ctx, "contributor application submitted", zap.String("user_id", user.ID.String()))
	return app, nil
}

func (s *contributorService) uploadResume(ctx context.Context, userID uuid.UUID, resume *dto.ResumeFile) (string, error) {
	if s.deps.Files == nil {
		return "", apperror.Wrap(apperror.ErrExternalService, storage.ErrNotConfigured.Error())
	}
	ext := strings.ToLower(filepath.Ext(resume.FileName))
	if !slices.Contains(allowedResumeExt, ext) {
		return "", apperror.Wrap(apperror.ErrInvalidInput, "resume must be a pdf, doc or docx file")
	}
	url, err := s.deps.Files.Upload(ctx, resume.Reader, s.deps.UploadFolder+"/resumes", userID.String()+ext)
	if err != nil {
		return "", apperror.New(http.StatusBadGateway, "failed to upload resume", errors.Join(apperror.ErrExternalService, err))
	}
	return url, nil
}

func (s *contributorService) MyApplication(ctx context.Context, userID uuid.UUID) (*entity.ContributorApplication, error) {
	app, err := s.deps.Applications.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperror.Wrap(apperror.ErrNotFound, "no contributor application found")
	}
	return app, nil
}

func (s *contributorService) Applications(ctx context.Context, query dto.ApplicationQuery) (*commonDto.Paginated[entity.ContributorApplication], error) {
	page := query.PageQuery.Normalize()
	apps, total, err := s.deps.Applications.List(ctx, repository.ApplicationFilter{
		Status: entity.ApplicationStatus(query.Status),
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []entity.ContributorApplication{}
	}
	return &commonDto.Paginated[entity.ContributorApplication]{
		Data: apps,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

// Review decides a pending application and mirrors the decision onto the
// applicant's contributor status.
func (s *contributorService) Review(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.ReviewRequest) (*entity.ContributorApplication, error) {
	status := entity.ApplicationStatus(req.Status)
	if status != entity.ApplicationApproved && status != entity.ApplicationRejected {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "status must be approved or rejected")
	}

	var app *entity.ContributorApplication
	err := s.deps.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		app, err = s.deps.Applications.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Wrap(apperror.ErrNotFound, "application not found")
			}
			return err
		}
		if app.Status != entity.ApplicationPending {
			return apperror.Wrap(apperror.ErrNotEligible, "application already reviewed")
		}

		user, err := s.deps.Users.LockByID(ctx, app.UserID)
		if err != nil {
			return err
		}

		now := s.deps.Clock.Now()
		reviewer := actor.ID
		app.Status = status
		app.ReviewedBy = &reviewer
		app.ReviewedAt = &now
		if notes := strings.TrimSpace(s.sanitizer.Sanitize(req.ReviewNotes)); notes != "" {
			app.ReviewNotes = &notes
		}
		if err := s.deps.Applications.Save(ctx, app); err != nil {
			return err
		}

		if status == entity.ApplicationApproved {
			user.ContributorStatus = entity.ContributorApproved
			if user.ContributorTag == nil || *user.ContributorTag == "" {
				tag := entity.DefaultContributorTag
				user.ContributorTag = &tag
			}
		} else {
			user.ContributorStatus = entity.ContributorRejected
		}
		if err := s.deps.Users.Save(ctx, user); err != nil {
			return err
		}

		return s.deps.Audit.Record(ctx, actor, audit.ActionApplicationReview, "application", app.ID.String(), map[string]any{
			"status":  string(status),
			"user_id": app.UserID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyApplicationReviewed(ctx, app.UserID, status)
	}
	return app, nil
}

func (s *contributorService) List(ctx context.Context, page commonDto.PageQuery) (*commonDto.Paginated[dto.ContributorResponse], error) {
	page = page.Normalize()
	users, total, err := s.deps.Users.List(ctx, userRepo.UserFilter{
		ContributorStatus: entity.ContributorApproved,
		SortBy:            "contributionXP",
		Desc:              true,
		Limit:             page.Limit,
		Offset:            page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	data := make([]dto.ContributorResponse, len(users))
	for i := range users {
		data[i] = dto.ToContributorResponse(&users[i])
	}
	return &commonDto.Paginated[dto.ContributorResponse]{
		Data: data,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *contributorService) Profile(ctx context.Context, id uuid.UUID) (*dto.ContributorResponse, error) {
	user, err := s.deps.Users.FindByID(ctx, id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if user == nil || user.ContributorStatus != entity.ContributorApproved {
		return nil, apperror.Wrap(apperror.ErrNotFound, "contributor not found")
	}
	res := dto.ToContributorResponse(user)
	return &res, nil
}

func (s *contributorService) UpdateProfile(ctx context.Context, userID uuid.UUID, req userDto.UpdateProfileRequest) (*userDto.UserResponse, error) {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ContributorStatus != entity.ContributorApproved {
		return nil, apperror.Wrap(apperror.ErrForbidden, "only approved contributors can update their profile")
	}
	return s.deps.UserService.UpdateProfile(ctx, userID, req)
}

func (s *contributorService) AssignRole(ctx context.Context, actor audit.Actor, req dto.AssignRoleRequest) (*dto.ContributorResponse, error) {
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	role := strings.TrimSpace(s.sanitizer.Sanitize(req.Role))
	if role == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "role is required")
	}

	var user *entity.User
	err = s.deps.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		found, err := s.deps.Users.FindByWallet(ctx, wallet)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Wrap(apperror.ErrNotFound, "user not found")
			}
			return err
		}
		user, err = s.deps.Users.LockByID(ctx, found.ID)
		if err != nil {
			return err
		}
		user.ContributorStatus = entity.ContributorApproved
		user.ContributorTag = &role
		if err := s.deps.Users.Save(ctx, user); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, actor, audit.ActionContributorRole, "user", user.ID.String(), map[string]any{"role": role})
	})
	if err != nil {
		return nil, err
	}

	res := dto.ToContributorResponse(user)
	return &res, nil
}

func (s *contributorService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	summary, err := s.deps.Users.ContributorSummary(ctx)
	if err != nil {
		return nil, err
	}
	top, err := s.List(ctx, commonDto.PageQuery{Page: 1, Limit: topContributors})
	if err != nil {
		return nil, err
	}
	apps, err := s.deps.Applications.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	if summary.ByTag == nil {
		summary.ByTag = []userRepo.TagCount{}
	}
	return &dto.StatsResponse{
		ContributorSummary: summary,
		TopContributors:    top.Data,
		Applications:       apps,
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill != "" && !slices.Contains(out, skill) {
			out = append(out, skill)
		}
	}
	return out
}
