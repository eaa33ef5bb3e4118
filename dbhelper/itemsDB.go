package dbhelper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

type NewItem struct {
	Title       string
	Description string
	Category    string
	StartPrice  float64
}

// roundCents keeps amounts at the two decimal places the columns store.
func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && amount > 0 && amount <= utils.MAX_AMOUNT
}

func preloadBids(db *gorm.DB) *gorm.DB {
	return db.Preload("Bids", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp asc, id asc")
	})
}

// CreateItem opens an auction that ends AuctionDuration from now.
func (s *Store) CreateItem(ctx context.Context, userID string, in NewItem, meta models.RequestMeta) (*models.Item, error) {
	startPrice := roundCents(in.StartPrice)
	if math.IsNaN(startPrice) || startPrice < 0 || startPrice > utils.MAX_AMOUNT {
		return nil, utils.ErrValidation.WithMessage("Start price must be a non-negative number")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "General"
	}
	now := s.now()
	item := models.Item{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		StartPrice:  startPrice,
		CurrentBid:  startPrice,
		CreatedBy:   userID,
		CreatedAt:   now,
		EndTime:     now.Add(s.AuctionDuration),
		Status:      models.ITEM_STATUS_ACTIVE,
	}
	if err := s.DB.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, utils.Internal(fmt.Errorf("creating item: %w", err))
	}
	item.Bids = []models.Bid{}
	s.Audit.Record(ctx, userID, models.AUDIT_ITEM_CREATED, models.Details{
		"itemId":     item.ID,
		"title":      item.Title,
		"startPrice": item.StartPrice,
	}, meta, 0)
	return &item, nil
}

// ListItems returns items newest first. An empty status lists every item.
func (s *Store) ListItems(ctx context.Context, status models.ItemStatus) ([]models.Item, error) {
	q := preloadBids(s.DB.WithContext(ctx))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	items := []models.Item{}
	if err := q.Order("created_at desc").Find(&items).Error; err != nil {
		return nil, utils.Internal(fmt.Errorf("listing items: %w", err))
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	result := preloadBids(s.DB.WithContext(ctx)).Where("id = ?", itemID).Limit(1).Find(&item)
	if result.Error != nil {
		return nil, utils.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &item, nil
}

// bidRejection reports why amount cannot be accepted on item right now, in
// the order callers see them: ended before too low.
func bidRejection(item *models.Item, amount float64, now time.Time) *utils.Error {
	if item.Status != models.ITEM_STATUS_ACTIVE || !now.Before(item.EndTime) {
		return utils.ErrAuctionEnded
	}
	if amount <= item.CurrentBid {
		return utils.ErrBidTooLow
	}
	return nil
}

// PlaceBid validates amount against the item and the bidder's wallet and
// records it. Funds are checked but not held; settlement happens when the
// auction closes.
func (s *Store) PlaceBid(ctx context.Context, itemID, userID string, amount float64, meta models.RequestMeta) (*models.Item, error) {
	amount = roundCents(amount)
	if !validAmount(amount) {
		return nil, utils.ErrValidation.WithMessage("Bid amount must be a positive number")
	}
	var user *models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		result := forUpdate(tx).Where("id = ?", itemID).Limit(1).Find(&item)
		if result.Error != nil {
			return utils.Internal(result.Error)
		}
		if result.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		now := s.now()
		if rejection := bidRejection(&item, amount, now); rejection != nil {
			return rejection
		}
		var err error
		user, err = lockUser(tx, userID)
		if err != nil {
			return err
		}
		if amount > user.Wallet {
			return utils.ErrInsufficientFunds
		}

		// the stored current_bid must still be the one we compared against
		update := tx.Model(&models.Item{}).
			Where("id = ? AND current_bid = ? AND status = ? AND end_time > ?", item.ID, item.CurrentBid, models.ITEM_STATUS_ACTIVE, now).
			Update("current_bid", amount)
		if update.Error != nil {
			return utils.Internal(update.Error)
		}
		if update.RowsAffected == 0 {
			var latest models.Item
			if err := tx.Where("id = ?", item.ID).First(&latest).Error; err != nil {
				return utils.Internal(err)
			}
			if rejection := bidRejection(&latest, amount, now); rejection != nil {
				return rejection
			}
			return utils.ErrBidTooLow
		}
		bid := models.Bid{ItemID: item.ID, UserID: userID, Amount: amount, Timestamp: now}
		if err := tx.Create(&bid).Error; err != nil {
			return utils.Internal(fmt.Errorf("recording bid: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, utils.AsError(err)
	}

	assessment := s.observeRisk(ctx, user, meta, models.AUDIT_BID_PLACED)
	s.Audit.Record(ctx, userID, models.AUDIT_BID_PLACED, models.Details{
		"itemId": itemID,
		"amount": amount,
	}, meta, assessment.RiskScore)
	return s.GetItem(ctx, itemID)
}

// CloseExpiredAuctions marks every active item whose end time has passed as
// sold and settles it with the highest bidder that can still pay. Items
// already sold are skipped, so running it again changes nothing.
func (s *Store) CloseExpiredAuctions(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC().Truncate(time.Millisecond)
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Item{}).
		Where("status = ? AND end_time <= ?", models.ITEM_STATUS_ACTIVE, now).
		Order("end_time asc").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, utils.Internal(fmt.Errorf("finding expired auctions: %w", err))
	}
	closed := 0
	var errs []error
	for _, id := range ids {
		ok, err := s.closeAuction(ctx, id, now)
		if err != nil {
			log.Errorf("closing auction %s: %v", id, err)
			errs = append(errs, fmt.Errorf("closing auction %s: %w", id, err))
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

type settlement struct {
	item     models.Item
	winner   *models.Bid
	bidCount int
	skipped  int
}

func (s *Store) closeAuction(ctx context.Context, itemID string, now time.Time) (bool, error) {
	var (
		closed bool
		result settlement
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, result = false, settlement{}
		// only one sweep can flip the status; everyone else sees zero rows
		update := tx.Model(&models.Item{}).
			Where("id = ? AND status = ? AND end_time <= ?", itemID, models.ITEM_STATUS_ACTIVE, now).
			Update("status", models.ITEM_STATUS_SOLD)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return nil
		}
		closed = true
		if err := tx.Where("id = ?", itemID).First(&result.item).Error; err != nil {
			return err
		}
		var bids []models.Bid
		err := tx.Where("item_id = ?", itemID).Order("amount desc, timestamp asc, id asc").Find(&bids).Error
		if err != nil {
			return err
		}
		result.bidCount = len(bids)
		for i := range bids {
			bid := bids[i]
			debit := tx.Model(&models.User{}).
				Where("id = ? AND wallet >= ?", bid.UserID, bid.Amount).
				Update("wallet", gorm.Expr("wallet - ?", bid.Amount))
			if debit.Error != nil {
				return debit.Error
			}
			if debit.RowsAffected == 0 {
				result.skipped++
				continue
			}
			entry := models.InventoryItem{
				UserID:    bid.UserID,
				ItemID:    itemID,
				Title:     result.item.Title,
				PricePaid: bid.Amount,
				WonAt:     now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Item{}).Where("id = ?", itemID).Update("winner_id", bid.UserID).Error; err != nil {
				return err
			}
			result.winner = &bid
			break
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !closed {
		return false, nil
	}

	details := models.Details{
		"itemId":      itemID,
		"title":       result.item.Title,
		"bidCount":    result.bidCount,
		"skippedBids": result.skipped,
	}
	winnerID := ""
	if result.winner != nil {
		winnerID = result.winner.UserID
		details["winningBid"] = result.winner.Amount
	}
	s.Audit.Record(ctx, winnerID, models.AUDIT_AUCTION_CLOSED, details, models.RequestMeta{}, 0)
	return true, nil
}
