package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"checkout-core/internal/domain"
)

// Catalog resolves product references to authoritative price records.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error)
}

type catalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) Catalog {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	products := make(map[uuid.UUID]domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, price, description, category FROM products WHERE id = ANY($1::uuid[])",
		idStrings,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                     domain.Product
			description, category sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &description, &category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Description = description.String
		p.Category = category.String
		products[p.ID] = p
	}
	return products, rows.Err()
}
