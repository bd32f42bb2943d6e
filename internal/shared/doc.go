// Package shared holds the error taxonomy used across the study pipeline.
//
// Adapters translate library errors into sentinels with MarkKind:
//
//	if errors.Is(err, pgx.ErrNoRows) {
//	    return shared.MarkKind(err, shared.KindNotFound)
//	}
//
// and outer layers pick behavior from KindOf:
//
//	Kind               | HTTP | Logged as
//	-------------------|------|----------
//	KindValidation     | 400  | warn
//	KindUnauthorized   | 401  | warn
//	KindNotFound       | 404  | debug
//	KindConflict       | 409  | info
//	KindRateLimited    | 429  | warn
//	KindTimeout        | 504  | error
//	KindDependencyFailure | 502 | error
//	everything else    | 500  | error
//
// Messages are lowercase, without trailing punctuation, so they compose when wrapped.
package shared
