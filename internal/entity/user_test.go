package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/leveling"
)

func TestApplyXPRecomputesLevel(t *testing.T) {
	table := leveling.DefaultTable()
	u := &User{Level: 1}

	prev, err := u.ApplyXP(50, table)
	require.NoError(t, err)
	assert.Equal(t, 1, prev)
	assert.Equal(t, 50, u.XP)
	assert.Equal(t, 1, u.Level)

	prev, err = u.ApplyXP(1600, table)
	require.NoError(t, err)
	assert.Equal(t, 1, prev)
	assert.Equal(t, 1650, u.XP)
	assert.Equal(t, 5, u.Level)

	_, err = u.ApplyXP(-1650, table)
	require.NoError(t, err)
	assert.Equal(t, 0, u.XP)
	assert.Equal(t, 1, u.Level)
}

func TestApplyXPBounds(t *testing.T) {
	table := leveling.DefaultTable()
	u := &User{XP: 10, Level: 1}

	_, err := u.ApplyXP(-11, table)
	assert.ErrorIs(t, err, apperror.ErrInsufficientXP)
	assert.Equal(t, 10, u.XP)

	_, err = u.ApplyXP(leveling.MaxXP, table)
	assert.ErrorIs(t, err, apperror.ErrLimitExceeded)
	assert.Equal(t, 10, u.XP)
}

func TestApplyContributionXP(t *testing.T) {
	u := &User{ContributionLevel: 1}
	require.NoError(t, u.ApplyContributionXP(260, leveling.DefaultContributionTable()))
	assert.Equal(t, 3, u.ContributionLevel)
	assert.ErrorIs(t, u.ApplyContributionXP(-500, leveling.DefaultContributionTable()), apperror.ErrInsufficientXP)
}

func TestOnboardingListsAreSets(t *testing.T) {
	u := &User{}
	u.MarkStepCompleted("add_helios_network")
	u.MarkStepCompleted("add_helios_network")
	u.AddMintedNFT("nft-1")
	u.AddMintedNFT("nft-1")

	assert.Len(t, u.OnboardingSteps, 1)
	assert.True(t, u.HasCompletedStep("add_helios_network"))
	assert.Len(t, u.MintedNFTs, 1)
}

func TestParseEnums(t *testing.T) {
	typ, err := ParseXPActivityType("faucet_claim")
	require.NoError(t, err)
	assert.Equal(t, ActivityFaucetClaim, typ)
	assert.False(t, typ.Loggable())

	_, err = ParseXPActivityType("free_money")
	assert.Error(t, err)

	key, err := ParseStepKey("mint_early_bird_nft")
	require.NoError(t, err)
	assert.Equal(t, StepMintEarlyBirdNFT, key)
	_, err = ParseStepKey("nope")
	assert.Error(t, err)

	assert.True(t, ClaimFailed.Terminal())
	assert.False(t, ClaimPending.Terminal())
	assert.True(t, ContributorApproved.Valid())
	assert.False(t, ContributorStatus("maybe").Valid())
}
