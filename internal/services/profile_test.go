package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aidmap/internal/domain/entities"
	"aidmap/internal/identity"
	"aidmap/internal/store"
	"aidmap/internal/store/memory"
)

// signIn runs a full phone verification and returns the resulting identity.
func signIn(t *testing.T, ids *identity.Service, codeSink *string, phone string) *entities.Identity {
	t.Helper()
	ctx := context.Background()

	challengeID, err := ids.VerifyPhone(ctx, phone)
	require.NoError(t, err)

	ident, _, err := ids.ConfirmChallenge(ctx, challengeID, *codeSink)
	require.NoError(t, err)
	return ident
}

func profileFixture(t *testing.T) (*memory.RecordStore, *identity.Service, *entities.Identity) {
	t.Helper()
	var code string
	ids := identity.NewService(identity.NewMemoryChallengeStore(), time.Minute,
		func(phone, c string) { code = c }, zap.NewNop())
	s := memory.NewRecordStore()
	ident := signIn(t, ids, &code, "0521234567")
	return s, ids, ident
}

func TestRequestHelpValidation(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	err := p.RequestHelp(ctx, "Al", "need groceries for the week")
	assert.ErrorIs(t, err, ErrNameTooShort)

	err = p.RequestHelp(ctx, "Aisha", "help")
	assert.ErrorIs(t, err, ErrDescriptionTooShort)

	assert.Equal(t, 0, s.Count(), "validation failures must not write")
}

func TestRequestHelpPublishes(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))

	rec, err := s.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aisha", rec.Name)
	assert.Equal(t, ident.PhoneNumber, rec.Mobile)
	assert.True(t, rec.IsNeedy())
	assert.Equal(t, 25.3132839, rec.Lat)
	assert.Len(t, rec.Geohash, 10)

	// The display name propagates to the identity registry.
	assert.Equal(t, "Aisha", ids.Get(ident.ID).DisplayName)
}

func TestOfferHelpDoesNotTouchSituation(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))
	require.NoError(t, p.OfferHelp(ctx, "can tutor kids in math"))

	rec, err := s.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsNeedy())
	assert.True(t, rec.IsVolunteer())

	err = p.OfferHelp(ctx, "short")
	assert.ErrorIs(t, err, ErrDescriptionTooShort)
}

func TestStopOfferingRemovesOnlyOffer(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))
	require.NoError(t, p.OfferHelp(ctx, "can tutor kids in math"))
	require.NoError(t, p.StopOffering(ctx))

	rec, err := s.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.Offer)
	assert.True(t, rec.IsNeedy(), "withdrawing an offer must not close the request")
}

func TestCommitToHelpDoesNotResolve(t *testing.T) {
	s, ids, ident := profileFixture(t)

	// The needy record belongs to someone else.
	situation := "need a ride to the clinic"
	patch := entities.RecordPatch{Name: strPtr("Omar"), Situation: &situation}
	patch.SetLocation(25.2048, 55.2708)
	require.NoError(t, s.Merge(context.Background(), "target", patch))

	p := NewProfileSync(s, ids, ident, zap.NewNop())
	require.NoError(t, ids.UpdateDisplayName(ident.ID, "Aisha"))
	require.NoError(t, p.CommitToHelp(context.Background(), "target"))
	require.NoError(t, p.CommitToHelp(context.Background(), "target")) // idempotent

	rec, err := s.Get(context.Background(), "target")
	require.NoError(t, err)
	require.Len(t, rec.Volunteers, 1)
	assert.Equal(t, ident.ID, rec.Volunteers[0].ID)
	assert.Equal(t, "Aisha", rec.Volunteers[0].Name)
	assert.True(t, rec.IsNeedy(), "committing must not resolve the request")
}

func TestResolveClosesRequest(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))
	require.NoError(t, p.Resolve(ctx))

	rec, err := s.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsNeedy())
	require.NotNil(t, rec.Situation, "resolving keeps the situation text")
	assert.NotNil(t, rec.ResolvedAt)
}

func TestDeleteAccountRemovesRecordAndIdentity(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))
	require.NoError(t, p.Start(ctx))

	require.NoError(t, p.DeleteAccount(ctx))

	_, err := s.Get(ctx, ident.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, ids.Get(ident.ID))
	assert.Nil(t, p.Confirmed())
}

func TestUnauthenticatedMutationsRejected(t *testing.T) {
	s := memory.NewRecordStore()
	var code string
	ids := identity.NewService(identity.NewMemoryChallengeStore(), time.Minute,
		func(phone, c string) { code = c }, zap.NewNop())
	_ = code

	p := NewProfileSync(s, ids, nil, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"), ErrUnauthenticated)
	assert.ErrorIs(t, p.OfferHelp(ctx, "can tutor kids in math"), ErrUnauthenticated)
	assert.ErrorIs(t, p.StopOffering(ctx), ErrUnauthenticated)
	assert.ErrorIs(t, p.CommitToHelp(ctx, "target"), ErrUnauthenticated)
	assert.ErrorIs(t, p.Resolve(ctx), ErrUnauthenticated)
	assert.ErrorIs(t, p.DeleteAccount(ctx), ErrUnauthenticated)
	assert.ErrorIs(t, p.Start(ctx), ErrUnauthenticated)
	assert.Equal(t, 0, s.Count())
}

func TestPendingLayerUntilConfirmed(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	// Without a subscription, the optimistic layer is all we see.
	p.SetLocation(25.3132839, 55.3719379)
	require.NoError(t, p.RequestHelp(ctx, "Aisha", "need groceries for the week"))
	assert.Equal(t, "need groceries for the week", p.Situation())
	assert.Nil(t, p.Confirmed())

	// Starting the sync seeds the confirmed layer and drops the pending one.
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	require.NotNil(t, p.Confirmed())
	assert.Equal(t, "need groceries for the week", p.Situation())
}

func TestConfirmedStateWins(t *testing.T) {
	s, ids, ident := profileFixture(t)
	p := NewProfileSync(s, ids, ident, zap.NewNop())
	ctx := context.Background()

	changes := make(chan *entities.UserRecord, 4)
	p.SetOnChange(func(rec *entities.UserRecord) { changes <- rec })
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	// A write from another session lands through the subscription.
	situation := "need a wheelchair ramp"
	require.NoError(t, s.Merge(ctx, ident.ID, entities.RecordPatch{Situation: &situation}))

	select {
	case rec := <-changes:
		require.NotNil(t, rec)
		require.NotNil(t, rec.Situation)
		assert.Equal(t, situation, *rec.Situation)
	case <-time.After(time.Second):
		t.Fatal("subscription change not observed")
	}
	assert.Equal(t, situation, p.Situation())
}

func TestOperationPendingGuard(t *testing.T) {
	s, ids, ident := profileFixture(t)

	blocked := make(chan struct{})
	release := make(chan struct{})
	slow := &slowStore{RecordStore: s, blocked: blocked, release: release}

	p := NewProfileSync(slow, ids, ident, zap.NewNop())
	p.SetLocation(25.3132839, 55.3719379)

	done := make(chan error, 1)
	go func() {
		done <- p.RequestHelp(context.Background(), "Aisha", "need groceries for the week")
	}()
	<-blocked

	err := p.RequestHelp(context.Background(), "Aisha", "need groceries for the week")
	assert.ErrorIs(t, err, ErrOperationPending)

	// A different operation is not blocked by an unrelated in-flight one.
	assert.True(t, p.Pending(OpRequestHelp))
	assert.False(t, p.Pending(OpOfferHelp))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.Pending(OpRequestHelp))
}

// slowStore blocks the first Merge until released.
type slowStore struct {
	*memory.RecordStore
	blocked chan struct{}
	release chan struct{}
	once    bool
}

func (s *slowStore) Merge(ctx context.Context, id string, patch entities.RecordPatch) error {
	if !s.once {
		s.once = true
		close(s.blocked)
		<-s.release
	}
	return s.RecordStore.Merge(ctx, id, patch)
}
