package dbhelper

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

// Store runs the account security and auction flows against the database.
// All shared state lives in the database; a Store is safe for concurrent use.
type Store struct {
	DB              *gorm.DB
	Mailer          mailer.Mailer
	Tokens          *utils.TokenIssuer
	Audit           *Auditor
	Clock           func() time.Time
	AuctionDuration time.Duration
}

func NewStore(db *gorm.DB, m mailer.Mailer, tokens *utils.TokenIssuer) *Store {
	s := &Store{
		DB:              db,
		Mailer:          m,
		Tokens:          tokens,
		Clock:           time.Now,
		AuctionDuration: utils.AUCTION_DURATION,
	}
	s.Audit = &Auditor{DB: db, Clock: s.now}
	return s
}

// now is truncated to the precision mysql keeps for DATETIME(3) columns so
// values read back compare equal to the ones written.
func (s *Store) now() time.Time {
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Millisecond)
}

// notify sends mail without failing the caller. A notification never rolls
// back the state change it describes; failures are logged and reported.
func (s *Store) notify(ctx context.Context, msg mailer.Message) error {
	if s.Mailer == nil {
		return nil
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		log.Errorf("sending %q to %s: %v", msg.Subject, msg.To, err)
		return err
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	result := s.DB.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, utils.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &user, nil
}

func lockUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	result := forUpdate(tx).Where("id = ?", userID).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, utils.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &user, nil
}

func userRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
