/*
service.go - Transaction command handler

PURPOSE:
  Create, Update and Delete are the only ways a Transaction is born,
  changed or removed. Each command is one unit of work spanning the
  transaction row and the one or two party rows whose balance it moves.

COMMAND FLOW:
  1. Validate the input (no storage touched)
  2. Open a unit of work (TxStore.WithTx)
  3. Load every affected row and authorize it against the caller
  4. Mutate balances through the Balance Mutator, persist
  5. Write the transaction row
  6. Commit, or roll back everything on the first error

UPDATE SEMANTICS:
  Update is a full replace and may move a transaction to another party
  or change its type. Both the original and the new party are loaded and
  authorized before the original delta is reversed, so a malformed edit
  is rejected before the first write.

FAILURES:
  Validation, not-found and unauthorized errors are returned verbatim.
  ErrConflict is returned for commit conflicts; the engine never retries.
  Anything else is wrapped in ErrStorage.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/logger"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the ledger engine. Zero-value fields other than Store are
// filled by NewService.
type Service struct {
	Store  Backend
	Logger *zap.Logger

	// Now is the clock used for CreatedAt/UpdatedAt and date presets.
	Now func() time.Time

	// NewID generates transaction and party ids.
	NewID func() string
}

// NewService creates a service backed by store.
func NewService(store Backend, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Store:  store,
		Logger: log.Named("ledger"),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	base := s.Logger
	if base == nil {
		base = zap.NewNop()
	}
	return logger.FromContextOr(ctx, base)
}

// =============================================================================
// VALIDATION
// =============================================================================

const maxDescriptionLen = 500

// ValidateInput checks a command payload without touching storage.
func ValidateInput(in TransactionInput) error {
	if !in.PartyModel.IsValid() {
		return invalid("partyModel", "must be Supplier or Customer")
	}
	if !in.Type.IsValid() {
		return invalid("type", "must be one of Purchase, Sale, Payment Out, Payment In")
	}
	if !in.Type.AllowedFor(in.PartyModel) {
		return &TypeMismatchError{Type: in.Type, PartyModel: in.PartyModel}
	}
	if strings.TrimSpace(string(in.PartyID)) == "" {
		return invalid("party", "is required")
	}
	if !in.Mode.IsValid() {
		return invalid("mode", "must be Cash, Bank or Online")
	}
	if in.Date.IsZero() {
		return invalid("date", "is required")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if in.Amount.GreaterThan(MaxAmount) {
		return invalid("amount", "must be at most "+MaxAmount.String())
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return invalid("amount", "must have at most two decimal places")
	}
	if len(in.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	return nil
}

func loadOwnedParty(ctx context.Context, st Store, owner OwnerID, model PartyModel, id PartyID) (*Party, error) {
	p, err := st.GetParty(ctx, model, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != owner {
		return nil, ErrUnauthorized
	}
	return p, nil
}

func loadOwnedTransaction(ctx context.Context, st Store, owner OwnerID, id TransactionID) (*Transaction, error) {
	tx, err := st.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.OwnerID != owner {
		return nil, ErrUnauthorized
	}
	return tx, nil
}

// classify keeps domain errors verbatim and hides everything else behind
// ErrStorage.
func classify(err error) error {
	switch {
	case IsClientError(err), IsNotFound(err),
		errors.Is(err, ErrUnauthorized), errors.Is(err, ErrConflict),
		errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func (s *Service) rejected(ctx context.Context, op string, owner OwnerID, err error) error {
	err = classify(err)
	fields := []zap.Field{zap.String("op", op), zap.String("owner_id", string(owner)), zap.Error(err)}
	if errors.Is(err, ErrStorage) {
		s.log(ctx).Error("ledger command failed", fields...)
	} else {
		s.log(ctx).Debug("ledger command rejected", fields...)
	}
	return err
}

// =============================================================================
// COMMANDS
// =============================================================================

// CreateTransaction books a new transaction and moves its party balance.
func (s *Service) CreateTransaction(ctx context.Context, owner OwnerID, in TransactionInput) (*Transaction, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if err := ValidateInput(in); err != nil {
		return nil, s.rejected(ctx, "create", owner, err)
	}

	now := s.now()
	tx := Transaction{
		ID:          TransactionID(s.newID()),
		OwnerID:     owner,
		Date:        in.Date.UTC(),
		Type:        in.Type,
		PartyModel:  in.PartyModel,
		PartyID:     in.PartyID,
		Mode:        in.Mode,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	delta := tx.SignedDelta()

	err := s.Store.WithTx(ctx, func(st Store) error {
		party, err := loadOwnedParty(ctx, st, owner, in.PartyModel, in.PartyID)
		if err != nil {
			return err
		}

		ApplyDelta(party, delta)
		if err := CheckBalance(party); err != nil {
			return err
		}
		party.UpdatedAt = now
		if err := st.SavePartyBalance(ctx, *party); err != nil {
			return err
		}
		return st.InsertTransaction(ctx, tx)
	})
	if err != nil {
		return nil, s.rejected(ctx, "create", owner, err)
	}

	s.log(ctx).Info("transaction created",
		zap.String("owner_id", string(owner)),
		zap.String("tx_id", string(tx.ID)),
		zap.String("party_id", string(tx.PartyID)),
		zap.String("delta", delta.String()),
	)
	return &tx, nil
}

// UpdateTransaction replaces every mutable field of a transaction. The
// original delta is reversed on the original party and the new delta is
// applied to the (possibly different) new party.
func (s *Service) UpdateTransaction(ctx context.Context, owner OwnerID, id TransactionID, in TransactionInput) (*Transaction, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if err := ValidateInput(in); err != nil {
		return nil, s.rejected(ctx, "update", owner, err)
	}

	now := s.now()
	var updated Transaction

	err := s.Store.WithTx(ctx, func(st Store) error {
		existing, err := loadOwnedTransaction(ctx, st, owner, id)
		if err != nil {
			return err
		}

		original, err := loadOwnedParty(ctx, st, owner, existing.PartyModel, existing.PartyID)
		if err != nil {
			return err
		}
		target := original
		if in.PartyModel != existing.PartyModel || in.PartyID != existing.PartyID {
			target, err = loadOwnedParty(ctx, st, owner, in.PartyModel, in.PartyID)
			if err != nil {
				return err
			}
		}

		ReverseDelta(original, existing.SignedDelta())
		original.UpdatedAt = now
		if target != original {
			if err := CheckBalance(original); err != nil {
				return err
			}
		}
		if err := st.SavePartyBalance(ctx, *original); err != nil {
			return err
		}

		ApplyDelta(target, SignedDelta(in.Type, in.Amount))
		if err := CheckBalance(target); err != nil {
			return err
		}
		target.UpdatedAt = now
		if err := st.SavePartyBalance(ctx, *target); err != nil {
			return err
		}

		updated = *existing
		updated.Date = in.Date.UTC()
		updated.Type = in.Type
		updated.PartyModel = in.PartyModel
		updated.PartyID = in.PartyID
		updated.Mode = in.Mode
		updated.Description = strings.TrimSpace(in.Description)
		updated.Amount = in.Amount
		updated.UpdatedAt = now
		return st.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		return nil, s.rejected(ctx, "update", owner, err)
	}

	s.log(ctx).Info("transaction updated",
		zap.String("owner_id", string(owner)),
		zap.String("tx_id", string(updated.ID)),
		zap.String("party_id", string(updated.PartyID)),
		zap.String("delta", updated.SignedDelta().String()),
	)
	return &updated, nil
}

// DeleteTransaction removes a transaction and reverses its delta.
func (s *Service) DeleteTransaction(ctx context.Context, owner OwnerID, id TransactionID) error {
	if owner == "" {
		return ErrUnauthorized
	}

	now := s.now()
	var removed Transaction

	err := s.Store.WithTx(ctx, func(st Store) error {
		existing, err := loadOwnedTransaction(ctx, st, owner, id)
		if err != nil {
			return err
		}
		party, err := loadOwnedParty(ctx, st, owner, existing.PartyModel, existing.PartyID)
		if err != nil {
			return err
		}

		ReverseDelta(party, existing.SignedDelta())
		if err := CheckBalance(party); err != nil {
			return err
		}
		party.UpdatedAt = now
		if err := st.SavePartyBalance(ctx, *party); err != nil {
			return err
		}
		removed = *existing
		return st.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return s.rejected(ctx, "delete", owner, err)
	}

	s.log(ctx).Info("transaction deleted",
		zap.String("owner_id", string(owner)),
		zap.String("tx_id", string(removed.ID)),
		zap.String("party_id", string(removed.PartyID)),
		zap.String("delta", removed.SignedDelta().Neg().String()),
	)
	return nil
}

// =============================================================================
// PARTY DIRECTORY
// =============================================================================

const maxPartyNameLen = 100

// CreateParty opens a party account with a zero balance.
func (s *Service) CreateParty(ctx context.Context, owner OwnerID, in PartyInput) (*Party, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if !in.Model.IsValid() {
		return nil, invalid("model", "must be Supplier or Customer")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if len(name) > maxPartyNameLen {
		return nil, invalid("name", fmt.Sprintf("must be at most %d characters", maxPartyNameLen))
	}

	now := s.now()
	p := Party{
		ID:        PartyID(s.newID()),
		OwnerID:   owner,
		Model:     in.Model,
		Name:      name,
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Address:   strings.TrimSpace(in.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.InsertParty(ctx, p); err != nil {
		return nil, s.rejected(ctx, "create_party", owner, err)
	}
	return &p, nil
}

// GetParty returns a party owned by the caller.
func (s *Service) GetParty(ctx context.Context, owner OwnerID, model PartyModel, id PartyID) (*Party, error) {
	p, err := loadOwnedParty(ctx, s.Store, owner, model, id)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}
