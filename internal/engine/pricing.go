package engine

import (
	"fmt"
	"math"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

type priceOptions struct {
	discount *float64
	units    int
}

// PriceOption 定价选项。
type PriceOption func(*priceOptions)

// WithDiscount 覆盖目录默认折扣（百分比，0-100）。
func WithDiscount(percent float64) PriceOption {
	return func(o *priceOptions) { o.discount = &percent }
}

// WithUnits 设置整泵数量，每一行 BOM 的数量都乘以该值。
func WithUnits(n int) PriceOption {
	return func(o *priceOptions) { o.units = n }
}

// Price 按固定装配顺序生成 BOM 并计算总价。
//
// 顺序：泵壳 → 叶轮 → 电机 → 密封 → 安装方式 → 联轴器 → ATEX 套件（仅 ATEX）→ 紧固件 → 涂装。
// 行项目保留全部精度，只在总价层面四舍五入到分。
// 任一价格缺失都会返回 catalog.ErrPriceNotFound，不会用 0 价格代替。
func Price(c *catalog.Catalog, cfg model.PumpConfiguration, opts ...PriceOption) (model.Pricing, error) {
	if c == nil {
		return model.Pricing{}, fmt.Errorf("price: nil catalog")
	}
	o := priceOptions{units: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.units < 1 {
		return model.Pricing{}, fmt.Errorf("price: units must be >= 1, got %d", o.units)
	}
	discount := c.DefaultDiscountPercent
	if o.discount != nil {
		discount = *o.discount
	}
	if discount < 0 || discount > 100 || math.IsNaN(discount) {
		return model.Pricing{}, fmt.Errorf("price: discount %.2f out of [0,100]", discount)
	}

	type lookup func() (catalog.PriceEntry, error)
	steps := []lookup{
		func() (catalog.PriceEntry, error) { return c.Casing(cfg.Family, cfg.Material) },
		func() (catalog.PriceEntry, error) { return c.Impeller(cfg.ImpellerCode) },
		func() (catalog.PriceEntry, error) { return c.Motor(cfg.MotorHP, cfg.Voltage) },
		func() (catalog.PriceEntry, error) { return c.Seal(cfg.SealType, cfg.Material) },
		func() (catalog.PriceEntry, error) { return c.Mount(cfg.Mount) },
		c.Coupling,
	}
	if cfg.ATEX {
		steps = append(steps, c.ATEXPackage)
	}
	steps = append(steps, c.Fasteners, c.Finish)

	bom := make([]model.BOMItem, 0, len(steps))
	var list float64
	for _, step := range steps {
		p, err := step()
		if err != nil {
			return model.Pricing{}, fmt.Errorf("price %s: %w", cfg.Family, err)
		}
		item := model.BOMItem{
			SKU:           p.SKU,
			Description:   p.Description,
			Quantity:      o.units,
			UnitPrice:     p.Price,
			ExtendedPrice: float64(o.units) * p.Price,
		}
		list += item.ExtendedPrice
		bom = append(bom, item)
	}

	listTotal := Round2(list)
	return model.Pricing{
		ListTotal:       listTotal,
		DiscountPercent: discount,
		NetTotal:        Round2(listTotal * (1 - discount/100)),
		BOM:             bom,
	}, nil
}

// Round2 四舍五入到两位小数。
func Round2(x float64) float64 { return math.Round(x*100) / 100 }
