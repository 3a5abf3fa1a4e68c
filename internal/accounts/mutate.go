package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
)

// Mutation edits the loaded account in place and returns the columns it
// changed. Returning no columns skips the write.
type Mutation func(account *model.Account) ([]string, error)

// Mutate runs a read-modify-write cycle on one account using compare-and-set
// on the version column. The cycle is retried when another writer wins the
// race, so concurrent increments are never lost.
func Mutate(ctx context.Context, repo AccountRepository, accountID uint, fn Mutation) (*model.Account, error) {
	for attempt := 0; attempt < params.LockoutMaxCASRetries; attempt++ {
		account, err := repo.GetByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		columns, err := fn(account)
		if err != nil {
			return account, err
		}
		if len(columns) == 0 {
			return account, nil
		}
		err = repo.UpdateVersioned(ctx, account, columns...)
		if errors.Is(err, ErrVersionConflict) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return account, nil
	}
	return nil, fmt.Errorf("account %d: %w after %d attempts", accountID, ErrVersionConflict, params.LockoutMaxCASRetries)
}
