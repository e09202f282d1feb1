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

// UserRepository stores durable accounts, partitioned by provider subject
// id with phone and email lookup tables kept in step.
type UserRepository struct {
	client *ScyllaClient
}

func NewUserRepository(client *ScyllaClient) *UserRepository {
	return &UserRepository{client: client}
}

const userColumns = `user_id, phone_number, email, name, roles, account_type,
	pin_hash, pin_salt, has_default_pin, reservation_ids, created_at, last_login, updated_at`

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE user_id = ?`, userColumns)
	return r.scanUser(r.client.Session.Query(query, userID).WithContext(ctx))
}

func (r *UserRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	phone = util.NormalizePhone(phone)

	var userID string
	err := r.client.Session.Query(
		`SELECT user_id FROM users_by_phone WHERE phone_number = ?`, phone,
	).WithContext(ctx).Scan(&userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user by phone: %w", err)
	}

	return r.GetUser(ctx, userID)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var userID string
	err := r.client.Session.Query(
		`SELECT user_id FROM users_by_email WHERE email = ?`, email,
	).WithContext(ctx).Scan(&userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return r.GetUser(ctx, userID)
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = &now

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(fmt.Sprintf(`INSERT INTO users (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, userColumns),
		user.UserID, user.PhoneNumber, user.Email, user.Name, user.Roles,
		user.AccountType, user.PinHash, user.PinSalt, user.HasDefaultPin,
		user.ReservationIDs, user.CreatedAt, user.LastLogin, user.UpdatedAt)

	if user.PhoneNumber != "" {
		batch.Query(`INSERT INTO users_by_phone (phone_number, user_id) VALUES (?, ?)`,
			util.NormalizePhone(user.PhoneNumber), user.UserID)
	}
	if user.Email != "" {
		batch.Query(`INSERT INTO users_by_email (email, user_id) VALUES (?, ?)`,
			strings.ToLower(user.Email), user.UserID)
	}

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			util.String("user_id", user.UserID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateUser applies a partial update. Returns false when no record
// exists for the id; writes are last-writer-wins.
func (r *UserRepository) UpdateUser(ctx context.Context, userID string, update UserUpdate) (bool, error) {
	existing, err := r.GetUser(ctx, userID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	assignments := []string{"updated_at = ?"}
	now := time.Now().UTC()
	args := []interface{}{now}

	if update.PhoneNumber != nil {
		assignments = append(assignments, "phone_number = ?")
		args = append(args, *update.PhoneNumber)
	}
	if update.Email != nil {
		assignments = append(assignments, "email = ?")
		args = append(args, strings.ToLower(*update.Email))
	}
	if update.Name != nil {
		assignments = append(assignments, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Roles != nil {
		assignments = append(assignments, "roles = ?")
		args = append(args, update.Roles)
	}
	if update.PinHash != nil {
		assignments = append(assignments, "pin_hash = ?")
		args = append(args, *update.PinHash)
	}
	if update.PinSalt != nil {
		assignments = append(assignments, "pin_salt = ?")
		args = append(args, *update.PinSalt)
	}
	if update.HasDefaultPin != nil {
		assignments = append(assignments, "has_default_pin = ?")
		args = append(args, *update.HasDefaultPin)
	}
	if update.ReservationIDs != nil {
		assignments = append(assignments, "reservation_ids = ?")
		args = append(args, update.ReservationIDs)
	}
	if update.LastLogin != nil {
		assignments = append(assignments, "last_login = ?")
		args = append(args, *update.LastLogin)
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE user_id = ?", strings.Join(assignments, ", "))
	args = append(args, userID)

	if err := r.client.Session.Query(query, args...).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update user",
			util.String("user_id", userID),
			util.ErrorField(err))
		return false, fmt.Errorf("failed to update user: %w", err)
	}

	// keep lookup tables in step; a replaced credential must stop
	// resolving to this account
	for _, mut := range credentialLookupMutations(existing, update, userID) {
		if err := r.client.Session.Query(mut.stmt, mut.args...).WithContext(ctx).Exec(); err != nil {
			return false, fmt.Errorf("failed to update credential lookup: %w", err)
		}
	}

	return true, nil
}

// lookupMutation is one statement keeping users_by_phone and
// users_by_email in step with the users table.
type lookupMutation struct {
	stmt string
	args []interface{}
}

// credentialLookupMutations computes the lookup-table writes an update
// implies: a changed credential inserts its new row and deletes the
// stale one.
func credentialLookupMutations(existing *models.User, update UserUpdate, userID string) []lookupMutation {
	var muts []lookupMutation

	if update.PhoneNumber != nil && *update.PhoneNumber != existing.PhoneNumber {
		muts = append(muts, lookupMutation{
			stmt: `INSERT INTO users_by_phone (phone_number, user_id) VALUES (?, ?)`,
			args: []interface{}{util.NormalizePhone(*update.PhoneNumber), userID},
		})
		if existing.PhoneNumber != "" {
			muts = append(muts, lookupMutation{
				stmt: `DELETE FROM users_by_phone WHERE phone_number = ?`,
				args: []interface{}{util.NormalizePhone(existing.PhoneNumber)},
			})
		}
	}

	if update.Email != nil && !strings.EqualFold(*update.Email, existing.Email) {
		muts = append(muts, lookupMutation{
			stmt: `INSERT INTO users_by_email (email, user_id) VALUES (?, ?)`,
			args: []interface{}{strings.ToLower(*update.Email), userID},
		})
		if existing.Email != "" {
			muts = append(muts, lookupMutation{
				stmt: `DELETE FROM users_by_email WHERE email = ?`,
				args: []interface{}{strings.ToLower(existing.Email)},
			})
		}
	}

	return muts
}

func (r *UserRepository) scanUser(q *gocql.Query) (*models.User, error) {
	user := &models.User{}
	err := q.Scan(
		&user.UserID, &user.PhoneNumber, &user.Email, &user.Name, &user.Roles,
		&user.AccountType, &user.PinHash, &user.PinSalt, &user.HasDefaultPin,
		&user.ReservationIDs, &user.CreatedAt, &user.LastLogin, &user.UpdatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}
