package store

import (
	"context"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

func ListShippingCosts(ctx context.Context, q database.Querier, shipmentType string) ([]models.ShippingCost, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, parameter, value_start, value_end, shipment_type, charges
		 FROM shipping_costs
		 WHERE shipment_type = $1
		 ORDER BY parameter, value_start`,
		shipmentType)
	if err != nil {
		return nil, fmt.Errorf("list shipping costs: %w", err)
	}
	defer rows.Close()

	costs := []models.ShippingCost{}
	for rows.Next() {
		var c models.ShippingCost
		if err := rows.Scan(&c.ID, &c.Parameter, &c.ValueStart, &c.ValueEnd, &c.ShipmentType, &c.Charges); err != nil {
			return nil, fmt.Errorf("scan shipping cost: %w", err)
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return costs, nil
}

func CreateShippingCost(ctx context.Context, q database.Querier, c models.ShippingCost) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO shipping_costs (parameter, value_start, value_end, shipment_type, charges)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.Parameter, c.ValueStart, c.ValueEnd, c.ShipmentType, c.Charges).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create shipping cost: %w", err)
	}
	return id, nil
}

func DeleteShippingCosts(ctx context.Context, q database.Querier, shipmentType string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM shipping_costs WHERE shipment_type = $1`, shipmentType); err != nil {
		return fmt.Errorf("delete shipping costs: %w", err)
	}
	return nil
}
