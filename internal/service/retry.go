package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/rs/zerolog"
)

func defaultLedgerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// isPermanentWriteError reports whether retrying a ledger write cannot help.
func isPermanentWriteError(err error) bool {
	switch sqlerr.ErrCode(err) {
	case sqlerr.UniqueViolation, sqlerr.ForeignKeyViolation,
		sqlerr.NotNullViolation, sqlerr.CheckViolation, sqlerr.ExclusionViolation:
		return true
	default:
		return false
	}
}

// retryWrite runs a ledger write up to attempts times with exponential
// backoff. Constraint violations stop the retries immediately.
func retryWrite[T any](
	ctx context.Context,
	logger *zerolog.Logger,
	newBackOff func() backoff.BackOff,
	attempts uint,
	what string,
	write func(context.Context) (T, error),
) (T, error) {
	try := 0
	return backoff.Retry(ctx, func() (T, error) {
		try++
		v, err := write(ctx)
		if err == nil {
			return v, nil
		}
		if isPermanentWriteError(err) {
			return v, backoff.Permanent(err)
		}

		logger.Warn().
			Err(err).
			Str("write", what).
			Int("try", try).
			Uint("max_tries", attempts).
			Msg("ledger write failed")
		return v, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(attempts))
}
