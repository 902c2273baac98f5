package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"aidmap/internal/domain/entities"
	"aidmap/internal/identity"
	"aidmap/internal/store"
)

var (
	// ErrUnauthenticated is returned by mutations attempted with no
	// signed-in identity. No write is issued.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrNameTooShort rejects names shorter than 3 characters locally.
	ErrNameTooShort = errors.New("please enter your name")
	// ErrDescriptionTooShort rejects situation/offer texts shorter than 10
	// characters locally.
	ErrDescriptionTooShort = errors.New("please describe it in a few words")
	// ErrOperationPending rejects a resubmission while the same operation
	// is still in flight for this identity.
	ErrOperationPending = errors.New("operation already in progress")
)

// Operation names the profile mutations, used to track in-flight state.
type Operation string

const (
	OpRequestHelp   Operation = "request_help"
	OpOfferHelp     Operation = "offer_help"
	OpStopOffering  Operation = "stop_offering"
	OpCommitToHelp  Operation = "commit_to_help"
	OpResolve       Operation = "resolve"
	OpDeleteAccount Operation = "delete_account"
)

// ProfileSync keeps the signed-in identity's own record synchronized with
// the store. It holds two layers of state: a pending edit applied
// optimistically when a mutation is issued, and the confirmed value
// delivered by the live subscription. The confirmed value is the source of
// truth — whenever the subscription fires it overwrites the pending layer,
// regardless of what mutations are still outstanding.
type ProfileSync struct {
	store store.RecordStore
	ids   *identity.Service
	log   *zap.Logger

	mu          sync.Mutex
	self        *entities.Identity
	confirmed   *entities.UserRecord
	pending     *entities.UserRecord
	lat, lng    float64
	located     bool
	unsubscribe func()
	inflight    map[Operation]bool
	onChange    func(*entities.UserRecord)
}

// NewProfileSync builds an unsubscribed sync for the given identity. A nil
// identity is allowed; every mutation will then fail with
// ErrUnauthenticated.
func NewProfileSync(recordStore store.RecordStore, ids *identity.Service, self *entities.Identity, log *zap.Logger) *ProfileSync {
	return &ProfileSync{
		store:    recordStore,
		ids:      ids,
		log:      log,
		self:     self,
		inflight: make(map[Operation]bool),
	}
}

// SetOnChange registers a callback fired with the confirmed record after
// every subscription update (nil when the record is deleted).
func (p *ProfileSync) SetOnChange(fn func(*entities.UserRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start subscribes to the identity's own document. Idempotent.
func (p *ProfileSync) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.self == nil {
		p.mu.Unlock()
		return ErrUnauthenticated
	}
	if p.unsubscribe != nil {
		p.mu.Unlock()
		return nil
	}
	id := p.self.ID
	p.mu.Unlock()

	cancel, err := p.store.Subscribe(ctx, id, p.onSnapshot)
	if err != nil {
		return fmt.Errorf("subscribing to own record: %w", err)
	}

	p.mu.Lock()
	p.unsubscribe = cancel
	p.mu.Unlock()

	// Seed the confirmed layer; a missing record just means the user has
	// not requested or offered anything yet.
	if rec, err := p.store.Get(ctx, id); err == nil {
		p.onSnapshot(rec)
	} else if !errors.Is(err, store.ErrNotFound) {
		p.log.Warn("seeding profile state", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// Stop releases the subscription. Idempotent; safe on every exit path.
func (p *ProfileSync) Stop() {
	p.mu.Lock()
	cancel := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// onSnapshot is the subscription callback: confirmed always wins.
func (p *ProfileSync) onSnapshot(rec *entities.UserRecord) {
	p.mu.Lock()
	p.confirmed = rec.Clone()
	p.pending = nil
	fn := p.onChange
	snapshot := p.confirmed.Clone()
	p.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Confirmed returns the last store-confirmed record, or nil.
func (p *ProfileSync) Confirmed() *entities.UserRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed.Clone()
}

// Situation returns the situation text the UI should display: the pending
// edit if one is outstanding, otherwise the confirmed value.
func (p *ProfileSync) Situation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.displayRecord()
	if rec != nil && rec.Situation != nil {
		return *rec.Situation
	}
	return ""
}

// Offer returns the offer text the UI should display, pending-first.
func (p *ProfileSync) Offer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.displayRecord()
	if rec != nil && rec.Offer != nil {
		return *rec.Offer
	}
	return ""
}

func (p *ProfileSync) displayRecord() *entities.UserRecord {
	if p.pending != nil {
		return p.pending
	}
	return p.confirmed
}

// SetLocation records the device position used by the next RequestHelp.
func (p *ProfileSync) SetLocation(lat, lng float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lat = lat
	p.lng = lng
	p.located = true
}

// Pending reports whether the given operation is currently in flight.
func (p *ProfileSync) Pending(op Operation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[op]
}

// RequestHelp publishes (or updates) the identity's situation. Validation
// failures are local: no write is issued. On success the merge carries
// name, situation, mobile, and the current location with its geohash —
// nothing else on the document is touched.
func (p *ProfileSync) RequestHelp(ctx context.Context, name, situation string) error {
	if len(name) < 3 {
		return ErrNameTooShort
	}
	if len(situation) < 10 {
		return ErrDescriptionTooShort
	}

	self, err := p.begin(OpRequestHelp)
	if err != nil {
		return err
	}
	defer p.end(OpRequestHelp)

	if err := p.ids.UpdateDisplayName(self.ID, name); err != nil {
		return err
	}

	p.mu.Lock()
	lat, lng := p.lat, p.lng
	p.mu.Unlock()

	patch := entities.RecordPatch{
		Name:      &name,
		Mobile:    &self.PhoneNumber,
		Situation: &situation,
	}
	patch.SetLocation(lat, lng)

	p.stagePending(patch)
	if err := p.store.Merge(ctx, self.ID, patch); err != nil {
		p.dropPending()
		return fmt.Errorf("publishing help request: %w", err)
	}
	p.log.Info("help request published", zap.String("id", self.ID))
	return nil
}

// OfferHelp publishes (or updates) the identity's help offer.
func (p *ProfileSync) OfferHelp(ctx context.Context, offer string) error {
	if len(offer) < 10 {
		return ErrDescriptionTooShort
	}

	self, err := p.begin(OpOfferHelp)
	if err != nil {
		return err
	}
	defer p.end(OpOfferHelp)

	patch := entities.RecordPatch{
		Offer:  &offer,
		Mobile: &self.PhoneNumber,
	}

	p.stagePending(patch)
	if err := p.store.Merge(ctx, self.ID, patch); err != nil {
		p.dropPending()
		return fmt.Errorf("publishing help offer: %w", err)
	}
	p.log.Info("help offer published", zap.String("id", self.ID))
	return nil
}

// StopOffering removes only the offer field from the identity's record.
func (p *ProfileSync) StopOffering(ctx context.Context) error {
	self, err := p.begin(OpStopOffering)
	if err != nil {
		return err
	}
	defer p.end(OpStopOffering)

	patch := entities.RecordPatch{DeleteOffer: true}
	p.stagePending(patch)
	if err := p.store.Merge(ctx, self.ID, patch); err != nil {
		p.dropPending()
		return fmt.Errorf("withdrawing offer: %w", err)
	}
	p.log.Info("help offer withdrawn", zap.String("id", self.ID))
	return nil
}

// CommitToHelp appends the acting identity to the target record's
// volunteer set. Set-union semantics make a re-commit a no-op. Committing
// does not resolve the target — closure stays with the record's owner.
func (p *ProfileSync) CommitToHelp(ctx context.Context, targetID string) error {
	self, err := p.begin(OpCommitToHelp)
	if err != nil {
		return err
	}
	defer p.end(OpCommitToHelp)

	patch := entities.RecordPatch{
		AddVolunteer: &entities.Volunteer{
			ID:     self.ID,
			Name:   self.DisplayName,
			Mobile: self.PhoneNumber,
		},
	}
	if err := p.store.Merge(ctx, targetID, patch); err != nil {
		return fmt.Errorf("committing to help: %w", err)
	}
	p.log.Info("committed to help",
		zap.String("id", self.ID), zap.String("target", targetID))
	return nil
}

// Resolve closes the identity's own help request. The record keeps its
// situation text for the owner but stops surfacing as needy.
func (p *ProfileSync) Resolve(ctx context.Context) error {
	self, err := p.begin(OpResolve)
	if err != nil {
		return err
	}
	defer p.end(OpResolve)

	now := time.Now()
	patch := entities.RecordPatch{ResolvedAt: &now}
	p.stagePending(patch)
	if err := p.store.Merge(ctx, self.ID, patch); err != nil {
		p.dropPending()
		return fmt.Errorf("resolving help request: %w", err)
	}
	p.log.Info("help request resolved", zap.String("id", self.ID))
	return nil
}

// DeleteAccount removes the identity's document and then the identity
// itself, sequentially. If the identity deletion fails the document is not
// restored: a stale document is less harmful than an undeletable account.
func (p *ProfileSync) DeleteAccount(ctx context.Context) error {
	self, err := p.begin(OpDeleteAccount)
	if err != nil {
		return err
	}
	defer p.end(OpDeleteAccount)

	p.Stop()

	if err := p.store.Delete(ctx, self.ID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if err := p.ids.Delete(ctx, self.ID); err != nil {
		return fmt.Errorf("record deleted but identity removal failed: %w", err)
	}

	p.mu.Lock()
	p.confirmed = nil
	p.pending = nil
	p.mu.Unlock()

	p.log.Info("account deleted", zap.String("id", self.ID))
	return nil
}

// begin guards a mutation: it requires a signed-in identity and rejects a
// second submission of the same operation while one is in flight.
func (p *ProfileSync) begin(op Operation) (*entities.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.self == nil {
		return nil, ErrUnauthenticated
	}
	if p.inflight[op] {
		return nil, ErrOperationPending
	}
	p.inflight[op] = true

	// Refresh the display name; it may have changed via another session.
	if current := p.ids.Get(p.self.ID); current != nil {
		p.self = current
	}
	copied := *p.self
	return &copied, nil
}

func (p *ProfileSync) end(op Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, op)
}

// stagePending applies the patch optimistically to the local display
// layer. The next subscription snapshot replaces it.
func (p *ProfileSync) stagePending(patch entities.RecordPatch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.confirmed.Clone()
	if base == nil {
		base = &entities.UserRecord{}
		if p.self != nil {
			base.ID = p.self.ID
		}
	}
	if patch.Name != nil {
		base.Name = *patch.Name
	}
	if patch.Mobile != nil {
		base.Mobile = *patch.Mobile
	}
	if patch.Lat != nil {
		base.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		base.Lng = *patch.Lng
	}
	if patch.Geohash != nil {
		base.Geohash = *patch.Geohash
	}
	if patch.Situation != nil {
		s := *patch.Situation
		base.Situation = &s
	}
	if patch.Offer != nil {
		o := *patch.Offer
		base.Offer = &o
	}
	if patch.ResolvedAt != nil {
		t := *patch.ResolvedAt
		base.ResolvedAt = &t
	}
	if patch.DeleteOffer {
		base.Offer = nil
	}
	p.pending = base
}

// dropPending discards the optimistic layer after a failed write, leaving
// prior confirmed state visible.
func (p *ProfileSync) dropPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}
