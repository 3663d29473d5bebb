package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/eligibility"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// Resolver maps a platform handle to its numeric platform id.
type Resolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, bool)
}

// EligibilityRecorder is implemented by eligibility sources that track newly
// bound wallets.
type EligibilityRecorder interface {
	Add(address string) (bool, error)
}

// IdentityService applies registration rules on top of store.Identities.
type IdentityService struct {
	store    store.Store
	elig     eligibility.Checker
	resolver Resolver
	log      zerolog.Logger
	now      func() time.Time
}

func NewIdentityService(s store.Store, elig eligibility.Checker, r Resolver, log zerolog.Logger) *IdentityService {
	return &IdentityService{store: s, elig: elig, resolver: r, log: log, now: time.Now}
}

// Register binds a first wallet to handle. Checks short-circuit in order:
// handle registered, address missing, address bound, address ineligible,
// handle unresolvable. The returned error is non-nil only for store faults.
func (s *IdentityService) Register(ctx context.Context, handle, address, chain string) (model.Outcome, error) {
	handle = model.NormalizeHandle(handle)
	address = strings.TrimSpace(address)
	if handle == "" {
		return model.Failed(model.ReasonInvalidIdentity, "handle is required"), nil
	}

	registered, err := s.store.Identities().HandleRegistered(ctx, handle)
	if err != nil {
		return model.Failed(model.ReasonFailed, "lookup failed"), fmt.Errorf("handle registered: %w", err)
	}
	if registered {
		return model.Failed(model.ReasonDuplicateIdentity, fmt.Sprintf("@%s is already registered", handle)), nil
	}
	if address == "" {
		return model.Failed(model.ReasonMissingWallet, "wallet address is required"), nil
	}
	if out, err := s.walletUsable(ctx, address, chain); err != nil || !out.OK {
		return out, err
	}

	if s.resolver == nil {
		return model.Failed(model.ReasonInvalidIdentity, "handle resolution is unavailable"), nil
	}
	externalID, ok := s.resolver.ResolveHandle(ctx, handle)
	if !ok || externalID == "" {
		return model.Failed(model.ReasonInvalidIdentity, fmt.Sprintf("could not resolve @%s", handle)), nil
	}

	id, err := s.store.Identities().Register(ctx,
		&model.Identity{ExternalID: externalID, Handle: handle, RegistrationTime: s.now().UTC()},
		&model.Wallet{Address: address, Chain: chainOrDefault(chain)},
	)
	if err != nil {
		if out, ok := conflictOutcome(err, handle); ok {
			return out, nil
		}
		return model.Failed(model.ReasonFailed, "registration failed"), fmt.Errorf("register %s: %w", handle, err)
	}

	s.recordEligible(address)
	s.log.Info().Str("handle", handle).Str("externalId", externalID).Msg("identity registered")
	return model.Succeeded(model.ReasonRegistered, id, fmt.Sprintf("@%s registered", handle)), nil
}

// AddWallet binds an additional wallet to an existing identity.
func (s *IdentityService) AddWallet(ctx context.Context, handle, address, chain string) (model.Outcome, error) {
	handle = model.NormalizeHandle(handle)
	address = strings.TrimSpace(address)

	if _, err := s.store.Identities().GetByHandle(ctx, handle); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Failed(model.ReasonNotFound, fmt.Sprintf("@%s is not known", handle)), nil
		}
		return model.Failed(model.ReasonFailed, "lookup failed"), fmt.Errorf("get %s: %w", handle, err)
	}
	if address == "" {
		return model.Failed(model.ReasonMissingWallet, "wallet address is required"), nil
	}
	if out, err := s.walletUsable(ctx, address, chain); err != nil || !out.OK {
		return out, err
	}

	if _, err := s.store.Identities().AddWallet(ctx, handle, &model.Wallet{Address: address, Chain: chainOrDefault(chain)}); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Failed(model.ReasonNotFound, fmt.Sprintf("@%s is not known", handle)), nil
		}
		if out, ok := conflictOutcome(err, handle); ok {
			return out, nil
		}
		return model.Failed(model.ReasonFailed, "add wallet failed"), fmt.Errorf("add wallet %s: %w", handle, err)
	}
	id, err := s.store.Identities().GetByHandle(ctx, handle)
	if err != nil {
		return model.Failed(model.ReasonFailed, "reload failed"), err
	}
	s.recordEligible(address)
	return model.Succeeded(model.ReasonWalletAdded, id, fmt.Sprintf("wallet added to @%s", handle)), nil
}

// Observe creates or refreshes an identity seen during ingestion. It never
// consults the resolver and never touches wallets.
func (s *IdentityService) Observe(ctx context.Context, externalID, handle string, followerCount int64) (model.Outcome, error) {
	handle = model.NormalizeHandle(handle)
	if externalID == "" || handle == "" {
		return model.Failed(model.ReasonInvalidIdentity, "external id and handle are required"), nil
	}
	id, err := s.store.Identities().Observe(ctx, &model.Identity{
		ExternalID:       externalID,
		Handle:           handle,
		FollowerCount:    followerCount,
		RegistrationTime: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateIdentity) {
			return model.Failed(model.ReasonDuplicateIdentity, fmt.Sprintf("@%s belongs to another identity", handle)), nil
		}
		return model.Failed(model.ReasonFailed, "observe failed"), fmt.Errorf("observe %s: %w", externalID, err)
	}
	return model.Succeeded(model.ReasonObserved, id, ""), nil
}

// Archive soft-deletes the identity. Repeated calls succeed.
func (s *IdentityService) Archive(ctx context.Context, handle string) (model.Outcome, error) {
	return s.setArchived(ctx, handle, true, model.ReasonArchived)
}

// Reactivate clears the archived flag. Repeated calls succeed.
func (s *IdentityService) Reactivate(ctx context.Context, handle string) (model.Outcome, error) {
	return s.setArchived(ctx, handle, false, model.ReasonReactivated)
}

func (s *IdentityService) setArchived(ctx context.Context, handle string, archived bool, reason model.Reason) (model.Outcome, error) {
	handle = model.NormalizeHandle(handle)
	id, err := s.store.Identities().SetArchived(ctx, handle, archived)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Failed(model.ReasonNotFound, fmt.Sprintf("@%s is not known", handle)), nil
		}
		return model.Failed(model.ReasonFailed, string(reason)+" failed"), fmt.Errorf("set archived %s: %w", handle, err)
	}
	return model.Succeeded(reason, id, ""), nil
}

// Get returns the identity with its wallets, or model.ErrNotFound.
func (s *IdentityService) Get(ctx context.Context, handle string) (*model.Identity, error) {
	return s.store.Identities().GetByHandle(ctx, model.NormalizeHandle(handle))
}

// List returns identities ordered by handle.
func (s *IdentityService) List(ctx context.Context, includeArchived bool, limit int) ([]*model.Identity, error) {
	return s.store.Identities().List(ctx, includeArchived, limit)
}

// walletUsable runs the uniqueness then eligibility checks shared by Register
// and AddWallet. Uniqueness always hits the store.
func (s *IdentityService) walletUsable(ctx context.Context, address, chain string) (model.Outcome, error) {
	bound, err := s.store.Identities().WalletBound(ctx, address)
	if err != nil {
		return model.Failed(model.ReasonFailed, "lookup failed"), fmt.Errorf("wallet bound: %w", err)
	}
	if bound {
		return model.Failed(model.ReasonDuplicateWallet, "wallet is already bound to an identity"), nil
	}
	if s.elig != nil && !s.elig.IsEligible(ctx, address, chainOrDefault(chain)) {
		return model.Failed(model.ReasonInvalidWallet, "wallet is not eligible"), nil
	}
	return model.Outcome{OK: true}, nil
}

func (s *IdentityService) recordEligible(address string) {
	rec, ok := s.elig.(EligibilityRecorder)
	if !ok {
		return
	}
	if _, err := rec.Add(address); err != nil {
		s.log.Warn().Err(err).Str("address", address).Msg("record eligible wallet")
	}
}

// conflictOutcome maps store conflicts raised under concurrent registration.
func conflictOutcome(err error, handle string) (model.Outcome, bool) {
	switch {
	case errors.Is(err, model.ErrDuplicateWallet):
		return model.Failed(model.ReasonDuplicateWallet, "wallet is already bound to an identity"), true
	case errors.Is(err, model.ErrDuplicateIdentity):
		return model.Failed(model.ReasonDuplicateIdentity, fmt.Sprintf("@%s is already registered", handle)), true
	}
	return model.Outcome{}, false
}

func chainOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return model.DefaultChain
	}
	return strings.ToLower(c)
}
