package store

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	orderByUpdated  = "updated_at"
	orderByPrice    = "price"
	orderByPriority = "priority"
	orderByTitle    = "title"
)

// validProductOrderBy maps allowed OrderBy values to SQL column expressions.
var validProductOrderBy = map[string]string{
	orderByUpdated:  "updated_at DESC",
	orderByPrice:    "current_price ASC NULLS LAST",
	orderByPriority: "priority_score ASC",
	orderByTitle:    "title ASC",
}

const defaultProductOrderBy = "updated_at DESC"

const baseProductsSelect = `SELECT id, retailer_id, source_url, title, COALESCE(sku, ''),
	current_price, currency, highest_price, lowest_price, available, last_checked_at,
	cadence_seconds, priority_score, failure_streak, stale, enabled,
	created_at, updated_at
FROM products`

const countProductsSelect = "SELECT COUNT(*) FROM products"

// ProductQuery defines optional filters for product listing queries.
type ProductQuery struct {
	RetailerID *string
	Enabled    *bool
	Stale      *bool
	Available  *bool
	Search     *string // substring match on title
	Limit      int     // default 50
	Offset     int
	OrderBy    string  // "updated_at", "price", "priority", "title"
}

// ToSQL builds the WHERE clause, ORDER BY, LIMIT, and OFFSET for a product
// query. It returns two SQL strings (one for the data query, one for the
// count query) and the positional parameters.
func (q *ProductQuery) ToSQL() (dataSQL, countSQL string, args []any) {
	var conditions []string
	paramIdx := 1

	if q.RetailerID != nil {
		conditions = append(conditions, fmt.Sprintf("retailer_id = $%d", paramIdx))
		args = append(args, *q.RetailerID)
		paramIdx++
	}

	if q.Enabled != nil {
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", paramIdx))
		args = append(args, *q.Enabled)
		paramIdx++
	}

	if q.Stale != nil {
		conditions = append(conditions, fmt.Sprintf("stale = $%d", paramIdx))
		args = append(args, *q.Stale)
		paramIdx++
	}

	if q.Available != nil {
		conditions = append(conditions, fmt.Sprintf("available = $%d", paramIdx))
		args = append(args, *q.Available)
		paramIdx++
	}

	if q.Search != nil {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", paramIdx))
		args = append(args, "%"+*q.Search+"%")
		paramIdx++
	}

	whereClause := joinConditions(conditions)

	orderClause := defaultProductOrderBy
	if q.OrderBy != "" {
		if col, ok := validProductOrderBy[q.OrderBy]; ok {
			orderClause = col
		}
	}

	limit, offset := clampPage(q.Limit, q.Offset)

	dataSQL = fmt.Sprintf(
		"%s%s ORDER BY %s LIMIT %d OFFSET %d",
		baseProductsSelect, whereClause, orderClause, limit, offset,
	)
	countSQL = countProductsSelect + whereClause

	return dataSQL, countSQL, args
}

const baseEventsSelect = `SELECT id, rule_id, user_id, product_id, observed_at, kind,
	price, previous_price, COALESCE(message, ''), created_at,
	delivered, delivered_at, delivery_attempts, next_attempt_at, delivery_failed, read
FROM alert_events`

const countEventsSelect = "SELECT COUNT(*) FROM alert_events"

// EventQuery defines optional filters for alert event listing queries.
type EventQuery struct {
	ProductID *string
	UserID    *string
	RuleID    *string
	Kind      *string
	Unread    *bool
	Delivered *bool
	Since     *time.Time
	Limit     int // default 50
	Offset    int
}

// ToSQL builds the event data and count queries with positional parameters.
// Events always come back newest first.
func (q *EventQuery) ToSQL() (dataSQL, countSQL string, args []any) {
	var conditions []string
	paramIdx := 1

	if q.ProductID != nil {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", paramIdx))
		args = append(args, *q.ProductID)
		paramIdx++
	}

	if q.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", paramIdx))
		args = append(args, *q.UserID)
		paramIdx++
	}

	if q.RuleID != nil {
		conditions = append(conditions, fmt.Sprintf("rule_id = $%d", paramIdx))
		args = append(args, *q.RuleID)
		paramIdx++
	}

	if q.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", paramIdx))
		args = append(args, *q.Kind)
		paramIdx++
	}

	if q.Unread != nil && *q.Unread {
		conditions = append(conditions, "read = false")
	}

	if q.Delivered != nil {
		conditions = append(conditions, fmt.Sprintf("delivered = $%d", paramIdx))
		args = append(args, *q.Delivered)
		paramIdx++
	}

	if q.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", paramIdx))
		args = append(args, *q.Since)
		paramIdx++
	}

	whereClause := joinConditions(conditions)
	limit, offset := clampPage(q.Limit, q.Offset)

	dataSQL = fmt.Sprintf(
		"%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		baseEventsSelect, whereClause, limit, offset,
	)
	countSQL = countEventsSelect + whereClause

	return dataSQL, countSQL, args
}

func joinConditions(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, max(offset, 0)
}
