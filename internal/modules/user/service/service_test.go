package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	search "helios.network/testnetapi/internal/modules/search/service"
	"helios.network/testnetapi/internal/modules/user/dto"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/storage"
	"helios.network/testnetapi/pkg/token"
)

const testSignature = "0x" +
	"1111111111111111111111111111111111111111111111111111111111111111" +
	"2222222222222222222222222222222222222222222222222222222222222222" + "1b"

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, r io.Reader, folder, fileName string) (string, error) {
	args := m.Called(ctx, r, folder, fileName)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, fileURL string) error {
	return m.Called(ctx, fileURL).Error(0)
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Enabled() bool { return true }

func (m *mockSearch) IndexUser(ctx context.Context, user *entity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockSearch) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockSearch) SearchUsers(ctx context.Context, q search.UserSearchQuery) ([]uuid.UUID, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]uuid.UUID), args.Get(1).(int64), args.Error(2)
}

func (m *mockSearch) Reindex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type fixture struct {
	users  *testutil.UserStore
	clock  *clock.Fake
	tokens *token.Issuer
	svc    UserService
}

func newFixture(t *testing.T, cfg Config, searchSvc search.SearchService, files *mockStorage, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users:  testutil.NewUserStore(users...),
		clock:  clock.NewFake(testutil.Epoch),
		tokens: token.NewIssuer("test-secret", time.Hour),
	}
	if cfg.SignatureDomain == "" {
		cfg.SignatureDomain = "Helios Testnet"
	}
	if cfg.ReferralCodes == nil {
		cfg.ReferralCodes = []string{"HELIOS2025"}
	}
	cfg.UploadFolder = "helios_testnet"

	var fs storage.FileStorage
	if files != nil {
		fs = files
	}
	f.svc = NewUserService(f.users, searchSvc, fs, ratelimit.New(nil), f.tokens, f.clock, cfg)
	return f
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperror.MapErrorToStatus(err), err.Error())
}

func sign(t *testing.T, message string) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()
	wallet := "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

	res, err := f.svc.Register(ctx, dto.RegisterRequest{WalletAddress: wallet, Signature: testSignature, ReferralCode: "HELIOS2025"})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet), res.User.WalletAddress)
	assert.Equal(t, 0, res.User.XP)
	assert.Equal(t, 1, res.User.Level)
	assert.Equal(t, string(entity.ContributorNone), res.User.ContributorStatus)
	assert.Equal(t, "Bearer", res.TokenType)

	claims, err := f.tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.Subject)
	assert.Equal(t, strings.ToLower(wallet), claims.Wallet)

	_, err = f.svc.Register(ctx, dto.RegisterRequest{WalletAddress: strings.ToLower(wallet), Signature: testSignature})
	assertStatus(t, err, http.StatusConflict)

	_, err = f.svc.Register(ctx, dto.RegisterRequest{WalletAddress: testutil.Wallet(9), Signature: testSignature, ReferralCode: "BOGUS"})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestSignatureVerification(t *testing.T) {
	f := newFixture(t, Config{SignatureVerification: true}, nil, nil)
	ctx := context.Background()

	// A signature over someone else's login message.
	victim := strings.ToLower(mustAddress(t))
	_, sig := sign(t, chain.LoginMessage("Helios Testnet", victim))
	_, err := f.svc.Register(ctx, dto.RegisterRequest{WalletAddress: victim, Signature: sig})
	assertStatus(t, err, http.StatusUnauthorized)

	_, err = f.svc.Register(ctx, dto.RegisterRequest{WalletAddress: victim, Signature: testSignature})
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestLoginWithPersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	sig, err := crypto.Sign(accounts.TextHash([]byte(chain.LoginMessage("Helios Testnet", wallet))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	u := &entity.User{WalletAddress: wallet}
	f := newFixture(t, Config{SignatureVerification: true}, nil, nil, u)

	res, err := f.svc.Login(context.Background(), dto.LoginRequest{WalletAddress: wallet, Signature: hexutil.Encode(sig)})
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	require.NotNil(t, f.users.Get(u.ID).LastLoginAt)
	assert.Equal(t, testutil.Epoch, *f.users.Get(u.ID).LastLoginAt)
}

func TestLoginRejections(t *testing.T) {
	suspended := testutil.NewUser(2)
	suspended.Status = entity.AccountSuspended
	f := newFixture(t, Config{}, nil, nil, suspended)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, dto.LoginRequest{WalletAddress: testutil.Wallet(1), Signature: testSignature})
	assertStatus(t, err, http.StatusNotFound)

	_, err = f.svc.Login(ctx, dto.LoginRequest{WalletAddress: testutil.Wallet(2), Signature: testSignature})
	assertStatus(t, err, http.StatusForbidden)
}

func TestUpdateProfile(t *testing.T) {
	alice, bob := testutil.NewUser(1), testutil.NewUser(2)
	taken := "bob"
	bob.Username = &taken
	f := newFixture(t, Config{}, nil, nil, alice, bob)
	ctx := context.Background()

	_, err := f.svc.UpdateProfile(ctx, alice.ID, dto.UpdateProfileRequest{Username: &taken})
	assertStatus(t, err, http.StatusConflict)

	name := "alice"
	bio := `<b>builder</b><script>alert(1)</script>`
	res, err := f.svc.UpdateProfile(ctx, alice.ID, dto.UpdateProfileRequest{
		Username:    &name,
		Bio:         &bio,
		SocialLinks: map[string]string{"github": "https://github.com/alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", *res.Username)
	assert.Equal(t, "builder", *res.Bio)
	assert.JSONEq(t, `{"github":"https://github.com/alice"}`, string(res.SocialLinks))

	_, err = f.svc.UpdateProfile(ctx, bob.ID, dto.UpdateProfileRequest{Username: &taken})
	require.NoError(t, err, "keeping your own username is not a conflict")
}

func TestUploadAvatar(t *testing.T) {
	alice := testutil.NewUser(1)
	old := "https://res.cloudinary.com/demo/image/upload/v1/helios_testnet/avatars/old.png"
	alice.AvatarURL = &old

	files := &mockStorage{}
	newURL := "https://res.cloudinary.com/demo/image/upload/v2/helios_testnet/avatars/new.png"
	files.On("Upload", mock.Anything, mock.Anything, "helios_testnet/avatars", alice.ID.String()+".png").Return(newURL, nil).Once()
	files.On("Delete", mock.Anything, old).Return(nil).Once()

	f := newFixture(t, Config{}, nil, files, alice)
	ctx := context.Background()

	_, err := f.svc.UploadAvatar(ctx, alice.ID, dto.AvatarFile{Reader: strings.NewReader("x"), FileName: "me.exe"})
	assertStatus(t, err, http.StatusBadRequest)

	res, err := f.svc.UploadAvatar(ctx, alice.ID, dto.AvatarFile{Reader: strings.NewReader("png"), FileName: "me.PNG"})
	require.NoError(t, err)
	assert.Equal(t, newURL, *res.AvatarURL)

	_, err = f.svc.UploadAvatar(ctx, alice.ID, dto.AvatarFile{Reader: strings.NewReader("png"), FileName: "again.png"})
	assertStatus(t, err, http.StatusTooManyRequests)

	files.AssertExpectations(t)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	alice := testutil.NewUser(1)
	f := newFixture(t, Config{}, nil, nil, alice)
	_, err := f.svc.UploadAvatar(context.Background(), alice.ID, dto.AvatarFile{Reader: strings.NewReader("x"), FileName: "a.png"})
	assertStatus(t, err, http.StatusBadGateway)
}

func TestStatsNFTsAndLevelInfo(t *testing.T) {
	u := testutil.NewUser(1)
	u.XP, u.Level = 1650, 5
	u.ContributionXP = 260
	u.MarkStepCompleted("add_helios_network")
	u.MarkStepCompleted("claim_from_faucet")
	u.AddMintedNFT("onboarding-nft-token-id")
	f := newFixture(t, Config{}, nil, nil, u)
	ctx := context.Background()

	_, err := f.svc.Stats(ctx, "0x123")
	assertStatus(t, err, http.StatusBadRequest)

	stats, err := f.svc.Stats(ctx, u.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, 1650, stats.XP)
	assert.Equal(t, 5, stats.Level)
	assert.Equal(t, 2, stats.OnboardingProgress)
	assert.Equal(t, 1, stats.NFTCount)

	nfts, err := f.svc.NFTs(ctx, u.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, []string{"onboarding-nft-token-id"}, nfts.NFTs)

	info, err := f.svc.LevelInfo(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, info.Level)
	assert.Equal(t, 3, info.ContributionLevel)

	_, err = f.svc.Stats(ctx, testutil.Wallet(99))
	assertStatus(t, err, http.StatusNotFound)
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	a, b, c := testutil.NewUser(1), testutil.NewUser(2), testutil.NewUser(3)
	a.XP, b.XP, c.XP = 10, 300, 50
	tag := "Contributor"
	c.ContributorTag = &tag
	f := newFixture(t, Config{}, search.NewDisabled(), nil, a, b, c)
	ctx := context.Background()

	page, err := f.svc.Search(ctx, dto.SearchQuery{SortBy: "xp"})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, b.ID, page.Data[0].ID)
	assert.Equal(t, int64(3), page.Meta.TotalItems)

	page, err = f.svc.Search(ctx, dto.SearchQuery{Query: "contrib"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, c.ID, page.Data[0].ID)

	page, err = f.svc.Search(ctx, dto.SearchQuery{SortBy: "xp", SortOrder: "asc", PageQuery: commonDto.PageQuery{Page: 1, Limit: 1}})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, a.ID, page.Data[0].ID)
	assert.Equal(t, 3, page.Meta.TotalPages)
}

func TestSearchUsesIndexOrder(t *testing.T) {
	a, b := testutil.NewUser(1), testutil.NewUser(2)
	idx := &mockSearch{}
	idx.On("SearchUsers", mock.Anything, mock.MatchedBy(func(q search.UserSearchQuery) bool {
		return q.Query == "hel" && q.Limit == commonDto.DefaultLimit
	})).Return([]uuid.UUID{b.ID, uuid.New(), a.ID}, int64(2), nil).Once()
	idx.On("SearchUsers", mock.Anything, mock.Anything).Return([]uuid.UUID(nil), int64(0), errors.New("meili down")).Once()

	f := newFixture(t, Config{}, idx, nil, a, b)
	ctx := context.Background()

	page, err := f.svc.Search(ctx, dto.SearchQuery{Query: "hel"})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, b.ID, page.Data[0].ID)
	assert.Equal(t, a.ID, page.Data[1].ID)

	page, err = f.svc.Search(ctx, dto.SearchQuery{Query: a.WalletAddress})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, a.ID, page.Data[0].ID)
	idx.AssertExpectations(t)
}

func TestDeleteByWallet(t *testing.T) {
	u := testutil.NewUser(1)
	idx := &mockSearch{}
	idx.On("DeleteUser", mock.Anything, u.ID).Return(nil).Once()
	f := newFixture(t, Config{}, idx, nil, u)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteByWallet(ctx, u.WalletAddress))
	assert.Nil(t, f.users.Get(u.ID))

	assertStatus(t, f.svc.DeleteByWallet(ctx, u.WalletAddress), http.StatusNotFound)
	idx.AssertExpectations(t)
}

func mustAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
