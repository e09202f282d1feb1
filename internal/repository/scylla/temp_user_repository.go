package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"guest-access/internal/models"
	"guest-access/internal/util"
)

// TempUserRepository stores ephemeral guest identities. Creation is an
// upsert keyed by the deterministically derived id, so concurrent first
// visits for the same link converge on one record.
type TempUserRepository struct {
	client *ScyllaClient
}

func NewTempUserRepository(client *ScyllaClient) *TempUserRepository {
	return &TempUserRepository{client: client}
}

const tempUserColumns = `temp_user_id, token_hash, display_name, phone, reservation_ids,
	access_disabled, migration_status, upgraded_user_id, created_at, updated_at`

func (r *TempUserRepository) CreateTemporaryUser(ctx context.Context, tempUser *models.TemporaryUser) error {
	// A re-derivation of an existing id must not wipe collected state.
	existing, err := r.GetTemporaryUser(ctx, tempUser.TempUserID)
	if err == nil {
		*tempUser = *existing
		return nil
	}
	if err != ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	tempUser.CreatedAt = now
	if tempUser.MigrationStatus == "" {
		tempUser.MigrationStatus = models.MigrationNone
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(fmt.Sprintf(`INSERT INTO temp_users (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tempUserColumns),
		tempUser.TempUserID, tempUser.TokenHash, tempUser.DisplayName, tempUser.Phone,
		tempUser.ReservationIDs, tempUser.AccessDisabled, tempUser.MigrationStatus,
		tempUser.UpgradedUserID, tempUser.CreatedAt, tempUser.UpdatedAt)
	if phone := util.NormalizePhone(tempUser.Phone); phone != "" {
		batch.Query(`INSERT INTO temp_users_by_phone (phone, temp_user_id) VALUES (?, ?)`,
			phone, tempUser.TempUserID)
	}

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create temporary user",
			util.String("temp_user_id", tempUser.TempUserID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create temporary user: %w", err)
	}

	return nil
}

func (r *TempUserRepository) GetTemporaryUser(ctx context.Context, tempUserID string) (*models.TemporaryUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM temp_users WHERE temp_user_id = ?`, tempUserColumns)
	return r.scanTempUser(r.client.Session.Query(query, tempUserID).WithContext(ctx))
}

func (r *TempUserRepository) GetTemporaryUserByPhone(ctx context.Context, phone string) (*models.TemporaryUser, error) {
	phone = util.NormalizePhone(phone)

	var tempUserID string
	err := r.client.Session.Query(
		`SELECT temp_user_id FROM temp_users_by_phone WHERE phone = ?`, phone,
	).WithContext(ctx).Scan(&tempUserID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up temporary user by phone: %w", err)
	}

	return r.GetTemporaryUser(ctx, tempUserID)
}

func (r *TempUserRepository) UpdateTemporaryUser(ctx context.Context, tempUserID string, update TempUserUpdate) error {
	assignments := []string{"updated_at = ?"}
	now := time.Now().UTC()
	args := []interface{}{now}

	if update.DisplayName != nil {
		assignments = append(assignments, "display_name = ?")
		args = append(args, *update.DisplayName)
	}
	if update.Phone != nil {
		assignments = append(assignments, "phone = ?")
		args = append(args, util.NormalizePhone(*update.Phone))
	}
	if update.ReservationIDs != nil {
		assignments = append(assignments, "reservation_ids = ?")
		args = append(args, update.ReservationIDs)
	}
	if update.AccessDisabled != nil {
		assignments = append(assignments, "access_disabled = ?")
		args = append(args, *update.AccessDisabled)
	}
	if update.MigrationStatus != nil {
		assignments = append(assignments, "migration_status = ?")
		args = append(args, *update.MigrationStatus)
	}
	if update.UpgradedUserID != nil {
		assignments = append(assignments, "upgraded_user_id = ?")
		args = append(args, *update.UpgradedUserID)
	}

	query := fmt.Sprintf("UPDATE temp_users SET %s WHERE temp_user_id = ?", strings.Join(assignments, ", "))
	args = append(args, tempUserID)

	if err := r.client.Session.Query(query, args...).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update temporary user",
			util.String("temp_user_id", tempUserID),
			util.ErrorField(err))
		return fmt.Errorf("failed to update temporary user: %w", err)
	}

	if update.Phone != nil {
		if phone := util.NormalizePhone(*update.Phone); phone != "" {
			if err := r.client.Session.Query(
				`INSERT INTO temp_users_by_phone (phone, temp_user_id) VALUES (?, ?)`,
				phone, tempUserID,
			).WithContext(ctx).Exec(); err != nil {
				return fmt.Errorf("failed to update temp user phone lookup: %w", err)
			}
		}
	}

	return nil
}

func (r *TempUserRepository) scanTempUser(q *gocql.Query) (*models.TemporaryUser, error) {
	tempUser := &models.TemporaryUser{}
	err := q.Scan(
		&tempUser.TempUserID, &tempUser.TokenHash, &tempUser.DisplayName, &tempUser.Phone,
		&tempUser.ReservationIDs, &tempUser.AccessDisabled, &tempUser.MigrationStatus,
		&tempUser.UpgradedUserID, &tempUser.CreatedAt, &tempUser.UpdatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan temporary user: %w", err)
	}
	return tempUser, nil
}
