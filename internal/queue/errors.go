package queue

import (
	"errors"
	"fmt"

	"streamgate/internal/services"
)

var (
	// ErrNotClaimed reports that a row was no longer claimable.
	ErrNotClaimed = errors.New("job not claimable")
	// ErrNotFound reports a missing content file row.
	ErrNotFound = fmt.Errorf("%w: job", services.ErrNotFound)
)

func storeErr(op string, err error) error {
	return services.Wrap(services.ErrStoreUnavailable, "queue", op, "", err)
}
