package postgres

// SQL queries for the two-tier sample store, resource configuration,
// tariffs and cash-back scores.

const (
	// queryInsertDetailed writes one detailed sample. Uniqueness on
	// (resource_id, taken_at) is the sole writer guard: ON CONFLICT DO
	// NOTHING affects zero rows for duplicates, which the adapter maps to
	// storage.ErrDuplicate.
	queryInsertDetailed = `
		INSERT INTO detailed_samples (resource_id, taken_at, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_id, taken_at) DO NOTHING
	`

	queryInsertLongTerm = `
		INSERT INTO longterm_samples (resource_id, taken_at, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_id, taken_at) DO NOTHING
	`

	// queryRangeDetailed fetches samples with taken_at in [from, to),
	// chronological. Series reductions rely on the ordering.
	queryRangeDetailed = `
		SELECT resource_id, taken_at, value
		FROM detailed_samples
		WHERE resource_id = $1
		  AND taken_at >= $2
		  AND taken_at < $3
		ORDER BY taken_at ASC
	`

	queryRangeLongTerm = `
		SELECT resource_id, taken_at, value
		FROM longterm_samples
		WHERE resource_id = $1
		  AND taken_at >= $2
		  AND taken_at < $3
		ORDER BY taken_at ASC
	`

	// queryLatestDetailed serves live-value reads: newest detailed sample
	// at or after the freshness cutoff.
	queryLatestDetailed = `
		SELECT resource_id, taken_at, value
		FROM detailed_samples
		WHERE resource_id = $1
		  AND taken_at >= $2
		ORDER BY taken_at DESC
		LIMIT 1
	`

	// queryLatestLongTerm serves live and state reads for resources whose
	// samples land straight in the long-term tier.
	queryLatestLongTerm = `
		SELECT resource_id, taken_at, value
		FROM longterm_samples
		WHERE resource_id = $1
		  AND taken_at >= $2
		ORDER BY taken_at DESC
		LIMIT 1
	`

	queryDeleteDetailedBefore = `
		DELETE FROM detailed_samples
		WHERE resource_id = $1
		  AND taken_at < $2
	`

	queryGetResource = `
		SELECT id, location_id, kind, unit, supported_methods, preferred_method,
		       detailed_resolution, long_term_resolution, detailed_live_seconds,
		       last_detailed_write, last_long_term_write, migrated_through, deleted
		FROM resources
		WHERE id = $1
	`

	queryListResources = `
		SELECT id, location_id, kind, unit, supported_methods, preferred_method,
		       detailed_resolution, long_term_resolution, detailed_live_seconds,
		       last_detailed_write, last_long_term_write, migrated_through, deleted
		FROM resources
		WHERE deleted = FALSE
		ORDER BY id
	`

	queryListResourcesByLocation = `
		SELECT id, location_id, kind, unit, supported_methods, preferred_method,
		       detailed_resolution, long_term_resolution, detailed_live_seconds,
		       last_detailed_write, last_long_term_write, migrated_through, deleted
		FROM resources
		WHERE location_id = $1
		  AND deleted = FALSE
		ORDER BY id
	`

	queryUpdateWatermarks = `
		UPDATE resources
		SET last_detailed_write  = $2,
		    last_long_term_write = $3,
		    migrated_through     = $4
		WHERE id = $1
	`

	// queryApplicableTariffs returns tariffs of one kind whose validity
	// range intersects [from, to). Weekday and time-of-day matching happens
	// in the engine per instant, not in SQL.
	queryApplicableTariffs = `
		SELECT id, kind, resource_kind, valid_from, valid_to, weekdays,
		       start_minute, end_minute, unit_rate, daily_charge, monthly_charge
		FROM tariffs
		WHERE kind = $1
		  AND (resource_kind = '' OR resource_kind = $2)
		  AND valid_from < $4
		  AND (valid_to IS NULL OR valid_to > $3)
		ORDER BY valid_from ASC
	`

	// queryInsertScore writes a daily cash-back score once. ON CONFLICT DO
	// NOTHING affects zero rows when a score for (location, day) exists.
	queryInsertScore = `
		INSERT INTO cashback_scores (location_id, day, value, computed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (location_id, day) DO NOTHING
	`

	queryUpsertScore = `
		INSERT INTO cashback_scores (location_id, day, value, computed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (location_id, day) DO UPDATE SET
			value       = EXCLUDED.value,
			computed_at = EXCLUDED.computed_at
	`

	queryGetScore = `
		SELECT location_id, day, value, computed_at
		FROM cashback_scores
		WHERE location_id = $1
		  AND day = $2
	`
)
