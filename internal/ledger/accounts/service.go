package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// Service manages the per-channel chart of accounts.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the accounts service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateInput describes a new account.
type CreateInput struct {
	ChannelID  int64       `json:"-"`
	Code       string      `json:"code" validate:"required,max=64"`
	Name       string      `json:"name" validate:"required,max=128"`
	Type       AccountType `json:"type" validate:"required"`
	IsParent   bool        `json:"isParent"`
	ParentCode string      `json:"parentCode,omitempty" validate:"max=64"`
}

// Validate checks structural requirements before touching storage.
func (in CreateInput) Validate() error {
	if in.ChannelID == 0 {
		return errors.New("accounts: channel required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("accounts: unknown type %q", in.Type)
	}
	return nil
}

// Create adds an account, optionally under a parent. The parent must be
// an active parent account of the same type.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	account := Account{
		ChannelID: in.ChannelID,
		Code:      strings.TrimSpace(in.Code),
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		IsActive:  true,
		IsParent:  in.IsParent,
	}
	if in.ParentCode != "" {
		parent, err := s.repo.GetByCode(ctx, in.ChannelID, in.ParentCode)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return Account{}, shared.ErrInvalidHierarchy
			}
			return Account{}, err
		}
		if !parent.IsParent || !parent.IsActive || parent.Type != in.Type {
			return Account{}, shared.ErrInvalidHierarchy
		}
		account.ParentID = &parent.ID
	}
	created, err := s.repo.Insert(ctx, account)
	if err != nil {
		return Account{}, err
	}
	if s.logger != nil {
		s.logger.Info("account created",
			slog.Int64("channel_id", created.ChannelID),
			slog.String("code", created.Code),
			slog.String("type", string(created.Type)))
	}
	return created, nil
}

// Deactivate flags an account inactive. Accounts are never deleted so
// historical journal lines stay resolvable.
func (s *Service) Deactivate(ctx context.Context, accountID int64) error {
	return s.repo.SetActive(ctx, accountID, false)
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, accountID int64) (Account, error) {
	return s.repo.GetByID(ctx, accountID)
}

// GetByCode returns a channel account by code.
func (s *Service) GetByCode(ctx context.Context, channelID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, channelID, code)
}

// List returns the channel chart ordered by code.
func (s *Service) List(ctx context.Context, channelID int64) ([]Account, error) {
	return s.repo.ListByChannel(ctx, channelID)
}

// Children lists the sub-accounts rolled up under a parent.
func (s *Service) Children(ctx context.Context, parentID int64) ([]Account, error) {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent {
		return nil, shared.ErrInvalidHierarchy
	}
	return s.repo.Children(ctx, parentID)
}

// InitializeChannel seeds the standard retail chart for a channel.
// Safe to call repeatedly; existing codes are left untouched.
func (s *Service) InitializeChannel(ctx context.Context, channelID int64) error {
	for _, seed := range defaultChart {
		_, err := s.repo.Insert(ctx, Account{
			ChannelID: channelID,
			Code:      seed.Code,
			Name:      seed.Name,
			Type:      seed.Type,
			IsActive:  true,
			IsParent:  seed.IsParent,
		})
		if err != nil {
			if errors.Is(err, shared.ErrDuplicateAccountCode) {
				continue
			}
			return fmt.Errorf("accounts: seed %s: %w", seed.Code, err)
		}
	}
	if s.logger != nil {
		s.logger.Info("chart of accounts initialised", slog.Int64("channel_id", channelID))
	}
	return nil
}

// EnsureExist verifies every code exists for the channel, returning an
// error naming the missing ones.
func (s *Service) EnsureExist(ctx context.Context, channelID int64, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	unique := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	found, err := s.repo.ListByCodes(ctx, channelID, unique)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(found))
	for _, a := range found {
		have[a.Code] = struct{}{}
	}
	var missing []string
	for _, code := range unique {
		if _, ok := have[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("accounts: channel %d missing accounts %s: %w",
			channelID, strings.Join(missing, ", "), shared.ErrAccountNotFound)
	}
	return nil
}
