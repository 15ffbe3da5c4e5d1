package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

type wireDeliveryOption struct {
	Name         string          `json:"name"`
	Charge       json.RawMessage `json:"charge"`
	DeliveryTime string          `json:"deliveryTime"`
	IsActive     *bool           `json:"isActive"`
}

// DeliveryOptions calls GET /api/delivery-charges and drops inactive options.
func (c *Client) DeliveryOptions(ctx context.Context) ([]domain.DeliveryOption, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/delivery-charges", nil, &raw); err != nil {
		return nil, err
	}
	list := unwrapList(raw, "deliveryCharges", "charges")
	if list == nil {
		return []domain.DeliveryOption{}, nil
	}
	var wire []wireDeliveryOption
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode delivery charges: %w", err)
	}
	out := make([]domain.DeliveryOption, 0, len(wire))
	for _, w := range wire {
		if w.IsActive != nil && !*w.IsActive {
			continue
		}
		out = append(out, domain.DeliveryOption{
			Name:         w.Name,
			Charge:       pricing.Coerce(w.Charge),
			DeliveryTime: w.DeliveryTime,
		})
	}
	return out, nil
}

type wireTax struct {
	Name     string          `json:"name"`
	Rate     json.RawMessage `json:"rate"`
	IsActive json.RawMessage `json:"isActive"`
	Enabled  json.RawMessage `json:"enabled"`
}

// Tax calls GET /api/tax. The API returns either one setting or a list, in
// which case the first active entry wins.
func (c *Client) Tax(ctx context.Context) (domain.TaxSetting, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/tax", nil, &raw); err != nil {
		return domain.TaxSetting{}, err
	}

	var candidates []wireTax
	if list := unwrapList(raw, "taxes"); list != nil {
		if err := json.Unmarshal(list, &candidates); err != nil {
			return domain.TaxSetting{}, fmt.Errorf("decode tax: %w", err)
		}
	} else {
		var single wireTax
		if err := json.Unmarshal(unwrapObject(raw, "tax"), &single); err != nil {
			return domain.TaxSetting{}, fmt.Errorf("decode tax: %w", err)
		}
		candidates = []wireTax{single}
	}

	for _, w := range candidates {
		enabled := rawBool(w.IsActive) || rawBool(w.Enabled)
		if len(w.IsActive) == 0 && len(w.Enabled) == 0 {
			enabled = true
		}
		if !enabled {
			continue
		}
		return domain.TaxSetting{Name: w.Name, Rate: pricing.Coerce(w.Rate), Enabled: true}, nil
	}
	return domain.TaxSetting{}, nil
}
