package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

const planColumns = `id, name, description, stripe_price_id, duration_months,
	price_amount, price_currency, is_active`

// syncPlanSequence moves the id sequence past explicitly written ids.
const syncPlanSequence = `SELECT setval(
	pg_get_serial_sequence('subscription_plans', 'id'),
	GREATEST(COALESCE(MAX(id), 0), 1),
	MAX(id) IS NOT NULL
) FROM subscription_plans`

// Plans implements subscription.PlanCatalog over the subscription_plans table.
// Wrap it with subscription.NewCachedResolver to avoid a query per event.
type Plans struct {
	pool *pgxpool.Pool
}

// NewPlans creates a Plans catalog. Panics if pool is nil.
func NewPlans(pool *pgxpool.Pool) *Plans {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Plans{pool: pool}
}

func (p *Plans) ResolvePlanByPriceID(ctx context.Context, priceID string) (subscription.Plan, error) {
	return p.get(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE stripe_price_id = $1`, priceID)
}

func (p *Plans) PlanByID(ctx context.Context, id int64) (subscription.Plan, error) {
	return p.get(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id)
}

// ListPlans returns the active plans ordered by id.
func (p *Plans) ListPlans(ctx context.Context) ([]subscription.Plan, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list plans: %w", err)
	}
	defer rows.Close()

	plans := make([]subscription.Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list plans: %w", err)
	}
	return plans, nil
}

// Upsert inserts or replaces plans keyed by id. Used to seed the table from the YAML catalog.
func (p *Plans) Upsert(ctx context.Context, plans ...subscription.Plan) error {
	return pg.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		for _, plan := range plans {
			if _, err := tx.Exec(ctx,
				`INSERT INTO subscription_plans (`+planColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					stripe_price_id = EXCLUDED.stripe_price_id,
					duration_months = EXCLUDED.duration_months,
					price_amount = EXCLUDED.price_amount,
					price_currency = EXCLUDED.price_currency,
					is_active = EXCLUDED.is_active`,
				plan.ID, plan.Name, plan.Description, plan.PriceID, plan.DurationMonths,
				plan.Price.Amount, plan.Price.Currency, plan.Active,
			); err != nil {
				return fmt.Errorf("pgstore: upsert plan %d: %w", plan.ID, err)
			}
		}
		if _, err := tx.Exec(ctx, syncPlanSequence); err != nil {
			return fmt.Errorf("pgstore: sync plan id sequence: %w", err)
		}
		return nil
	})
}

func (p *Plans) get(ctx context.Context, query string, arg any) (subscription.Plan, error) {
	plan, err := scanPlan(p.pool.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return subscription.Plan{}, subscription.ErrPlanNotFound
	}
	if err != nil {
		return subscription.Plan{}, fmt.Errorf("pgstore: get plan: %w", err)
	}
	return plan, nil
}

func scanPlan(row pgx.Row) (subscription.Plan, error) {
	var plan subscription.Plan
	err := row.Scan(
		&plan.ID, &plan.Name, &plan.Description, &plan.PriceID, &plan.DurationMonths,
		&plan.Price.Amount, &plan.Price.Currency, &plan.Active,
	)
	return plan, err
}
