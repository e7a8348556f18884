package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrDuplicateCode signals that the short code is already taken.
	ErrDuplicateCode = errors.New("short code already exists")
	// ErrAlreadyOwned signals a claim on a link that already has an owner.
	ErrAlreadyOwned = errors.New("link already has an owner")
	// ErrClickLimitReached signals that a link no longer admits clicks.
	ErrClickLimitReached = errors.New("link is not accepting clicks")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLinkNotFound
	}
	return err
}
