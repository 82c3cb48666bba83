package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civitas/user-service/internal/domain"
)

const (
	insertAddressQuery = `
		INSERT INTO user_addresses (user_id, position, is_primary, detail, location)
		VALUES ($1, $2, $3, $4, $5)`

	deleteAddressesQuery = `DELETE FROM user_addresses WHERE user_id = $1`

	selectAddressesQuery = `
		SELECT user_id, is_primary, detail, location
		FROM user_addresses
		WHERE user_id = ANY($1)
		ORDER BY user_id, position`
)

// encodeAddress renders the optional parts as JSONB; nil stays NULL.
func encodeAddress(a domain.Address) (detail, location []byte, err error) {
	if a.Detail != nil {
		if detail, err = json.Marshal(a.Detail); err != nil {
			return nil, nil, fmt.Errorf("encode address detail: %w", err)
		}
	}
	if a.Location != nil {
		if location, err = json.Marshal(a.Location); err != nil {
			return nil, nil, fmt.Errorf("encode address location: %w", err)
		}
	}
	return detail, location, nil
}

func decodeAddress(isPrimary bool, detail, location []byte) (domain.Address, error) {
	a := domain.Address{IsPrimary: isPrimary}
	if len(detail) > 0 {
		a.Detail = &domain.AddressDetail{}
		if err := json.Unmarshal(detail, a.Detail); err != nil {
			return a, fmt.Errorf("decode address detail: %w", err)
		}
	}
	if len(location) > 0 {
		a.Location = &domain.GeoLocation{}
		if err := json.Unmarshal(location, a.Location); err != nil {
			return a, fmt.Errorf("decode address location: %w", err)
		}
	}
	return a, nil
}

// insertAddresses writes addresses in order; position preserves it.
func insertAddresses(ctx context.Context, tx pgx.Tx, userID string, addresses []domain.Address) error {
	for i, a := range addresses {
		detail, location, err := encodeAddress(a)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertAddressQuery, userID, i, a.IsPrimary, detail, location); err != nil {
			return fmt.Errorf("insert address %d: %w", i, err)
		}
	}
	return nil
}

// loadAddresses fetches the address lists of all ids in one round trip.
func (r *UserRepository) loadAddresses(ctx context.Context, ids []string) (map[string][]domain.Address, error) {
	rows, err := r.db.Query(ctx, selectAddressesQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Address, len(ids))
	for rows.Next() {
		var (
			userID           string
			isPrimary        bool
			detail, location []byte
		)
		if err := rows.Scan(&userID, &isPrimary, &detail, &location); err != nil {
			return nil, fmt.Errorf("scan address row: %w", err)
		}
		a, err := decodeAddress(isPrimary, detail, location)
		if err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate address rows: %w", err)
	}
	return out, nil
}
