package verification

import (
	"context"

	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
)

// ---- fakes ----

type fakeLinkStore struct {
	getMagicLink    func(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error)
	updateMagicLink func(ctx context.Context, tokenHash string, update scylla.MagicLinkUpdate) error
	getProperty     func(ctx context.Context, tokenHash string) (*models.Property, error)
}

func (s *fakeLinkStore) GetMagicLink(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error) {
	return s.getMagicLink(ctx, tokenHash)
}

func (s *fakeLinkStore) UpdateMagicLink(ctx context.Context, tokenHash string, update scylla.MagicLinkUpdate) error {
	return s.updateMagicLink(ctx, tokenHash, update)
}

func (s *fakeLinkStore) GetPropertyByMagicLinkToken(ctx context.Context, tokenHash string) (*models.Property, error) {
	return s.getProperty(ctx, tokenHash)
}

type fakeReservationStore struct {
	getReservation func(ctx context.Context, reservationID string) (*models.Reservation, error)
	findBySuffix   func(ctx context.Context, propertyID, last4 string) ([]*models.Reservation, error)
}

func (s *fakeReservationStore) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	return s.getReservation(ctx, reservationID)
}

func (s *fakeReservationStore) FindReservationsByPropertyAndPhoneSuffix(ctx context.Context, propertyID, last4 string) ([]*models.Reservation, error) {
	return s.findBySuffix(ctx, propertyID, last4)
}

type fakeTempUserStore struct {
	create     func(ctx context.Context, tempUser *models.TemporaryUser) error
	get        func(ctx context.Context, tempUserID string) (*models.TemporaryUser, error)
	getByPhone func(ctx context.Context, phone string) (*models.TemporaryUser, error)
	update     func(ctx context.Context, tempUserID string, update scylla.TempUserUpdate) error
}

func (s *fakeTempUserStore) CreateTemporaryUser(ctx context.Context, tempUser *models.TemporaryUser) error {
	return s.create(ctx, tempUser)
}

func (s *fakeTempUserStore) GetTemporaryUser(ctx context.Context, tempUserID string) (*models.TemporaryUser, error) {
	return s.get(ctx, tempUserID)
}

func (s *fakeTempUserStore) GetTemporaryUserByPhone(ctx context.Context, phone string) (*models.TemporaryUser, error) {
	return s.getByPhone(ctx, phone)
}

func (s *fakeTempUserStore) UpdateTemporaryUser(ctx context.Context, tempUserID string, update scylla.TempUserUpdate) error {
	return s.update(ctx, tempUserID, update)
}
