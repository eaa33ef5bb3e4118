package dbhelper

import (
	"context"
	"fmt"
	"strings"

	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

type Wallet struct {
	Balance   float64                `json:"wallet"`
	Inventory []models.InventoryItem `json:"inventory"`
}

func (s *Store) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallet := &Wallet{Balance: user.Wallet, Inventory: []models.InventoryItem{}}
	err = s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("won_at desc, id desc").Find(&wallet.Inventory).Error
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("loading inventory: %w", err))
	}
	return wallet, nil
}

// Deposit adds amount to the wallet and returns the new balance.
func (s *Store) Deposit(ctx context.Context, userID string, amount float64) (float64, error) {
	amount = roundCents(amount)
	if !validAmount(amount) {
		return 0, utils.ErrValidation.WithMessage("Deposit amount must be a positive number")
	}
	var balance float64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", userID).Update("wallet", gorm.Expr("wallet + ?", amount))
		if result.Error != nil {
			return utils.Internal(result.Error)
		}
		if result.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		var balances []float64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Pluck("wallet", &balances).Error; err != nil {
			return utils.Internal(err)
		}
		balance = balances[0]
		return nil
	})
	if err != nil {
		return 0, utils.AsError(err)
	}
	return balance, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, userID)
}

func (s *Store) UpdateProfile(ctx context.Context, userID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.ErrValidation.WithMessage("Name is required")
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(user).Update("name", name).Error; err != nil {
		return nil, utils.Internal(err)
	}
	user.Name = name
	return user, nil
}

// Logout only leaves a trail; tokens stay valid until they expire.
func (s *Store) Logout(ctx context.Context, userID string, meta models.RequestMeta) {
	s.Audit.Record(ctx, userID, models.AUDIT_LOGOUT, models.Details{}, meta, 0)
}
