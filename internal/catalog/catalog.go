package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// ErrPriceNotFound 表示派生出的配置在价格表中没有对应条目。
// 定价阶段遇到它必须失败，不能用 0 价格代替。
var ErrPriceNotFound = errors.New("price not found")

// Family 泵系列的能力范围。
type Family struct {
	Family    string  `yaml:"family" json:"family"`
	MinGPM    float64 `yaml:"min_gpm" json:"min_gpm"`
	MaxGPM    float64 `yaml:"max_gpm" json:"max_gpm"`
	MaxHeadFt float64 `yaml:"max_head_ft" json:"max_head_ft"`
	MaxHP     float64 `yaml:"max_hp" json:"max_hp"`
	Note      string  `yaml:"note" json:"note"`
}

// Range 闭区间 [Min, Max]。
type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

func (r Range) String() string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + "-" + strconv.FormatFloat(r.Max, 'f', -1, 64)
}

// ParseRange 解析 "a-b" 形式的区间字符串。
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q: want \"min-max\"", s)
	}
	minV, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	maxV, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if minV < 0 || maxV < minV {
		return Range{}, fmt.Errorf("invalid range %q: bounds out of order", s)
	}
	return Range{Min: minV, Max: maxV}, nil
}

// FlowRow 流量/扬程选型表的一行。表顺序即匹配优先级。
type FlowRow struct {
	GPMRange     string  `yaml:"gpm_range" json:"gpm_range"`
	HeadRange    string  `yaml:"head_range" json:"head_range"`
	Family       string  `yaml:"family" json:"family"`
	MotorHP      float64 `yaml:"motor_hp" json:"motor_hp"`
	ImpellerCode string  `yaml:"impeller_code" json:"impeller_code"`

	gpm  Range
	head Range
}

// Matches 判断 gpm/head 是否同时落在本行的两个闭区间内。
func (r FlowRow) Matches(gpm, headFt float64) bool {
	return r.gpm.Contains(gpm) && r.head.Contains(headFt)
}

func (r FlowRow) GPM() Range  { return r.gpm }
func (r FlowRow) Head() Range { return r.head }

// PriceEntry 价格表中的一个物料。
type PriceEntry struct {
	SKU         string  `yaml:"sku" json:"sku"`
	Description string  `yaml:"description" json:"description"`
	Price       float64 `yaml:"price" json:"price"`
}

type CasingPrice struct {
	Family     string         `yaml:"family"`
	Material   model.Material `yaml:"material"`
	PriceEntry `yaml:",inline"`
}

type ImpellerPrice struct {
	Code       string `yaml:"code"`
	PriceEntry `yaml:",inline"`
}

type MotorPrice struct {
	HP         float64           `yaml:"hp"`
	Voltage    model.PowerSupply `yaml:"voltage"`
	PriceEntry `yaml:",inline"`
}

type SealPrice struct {
	SealType   model.SealType `yaml:"seal_type"`
	Material   model.Material `yaml:"material"`
	PriceEntry `yaml:",inline"`
}

type MountPrice struct {
	Mount      model.Mount `yaml:"mount"`
	PriceEntry `yaml:",inline"`
}

// PriceTables BOM 价格表。前五类按键查找，其余为固定物料。
type PriceTables struct {
	Casings     []CasingPrice   `yaml:"casings"`
	Impellers   []ImpellerPrice `yaml:"impellers"`
	Motors      []MotorPrice    `yaml:"motors"`
	Seals       []SealPrice     `yaml:"seals"`
	Mounts      []MountPrice    `yaml:"mounts"`
	Coupling    PriceEntry      `yaml:"coupling"`
	ATEXPackage PriceEntry      `yaml:"atex_package"`
	Fasteners   PriceEntry      `yaml:"fasteners"`
	Finish      PriceEntry      `yaml:"finish"`
}

// Catalog 只读的选型与价格目录。通过 Parse/Load/Default 构造，构造后不应再修改。
type Catalog struct {
	DefaultDiscountPercent float64     `yaml:"default_discount_percent"`
	Families               []Family    `yaml:"families"`
	FlowMap                []FlowRow   `yaml:"flow_map"`
	Prices                 PriceTables `yaml:"prices"`

	casings   map[string]PriceEntry
	impellers map[string]PriceEntry
	motors    map[string]PriceEntry
	seals     map[string]PriceEntry
	mounts    map[model.Mount]PriceEntry
}

func casingKey(family string, m model.Material) string { return family + "|" + string(m) }

func motorKey(hp float64, v model.PowerSupply) string {
	return strconv.FormatFloat(hp, 'f', -1, 64) + "|" + string(v)
}

func sealKey(s model.SealType, m model.Material) string { return string(s) + "|" + string(m) }

// Validate 解析区间、建立价格索引并做结构校验。Parse 已经调用过它，
// 手工构造的目录在使用前也要先调用一次。
func (c *Catalog) Validate() error {
	if len(c.FlowMap) == 0 {
		return errors.New("catalog: flow_map is empty")
	}
	if c.DefaultDiscountPercent < 0 || c.DefaultDiscountPercent > 100 {
		return fmt.Errorf("catalog: default_discount_percent %.2f out of [0,100]", c.DefaultDiscountPercent)
	}
	for i := range c.FlowMap {
		row := &c.FlowMap[i]
		var err error
		if row.gpm, err = ParseRange(row.GPMRange); err != nil {
			return fmt.Errorf("catalog: flow_map[%d] gpm_range: %w", i, err)
		}
		if row.head, err = ParseRange(row.HeadRange); err != nil {
			return fmt.Errorf("catalog: flow_map[%d] head_range: %w", i, err)
		}
		if row.Family == "" || row.ImpellerCode == "" || row.MotorHP <= 0 {
			return fmt.Errorf("catalog: flow_map[%d] is incomplete", i)
		}
	}

	c.casings = make(map[string]PriceEntry, len(c.Prices.Casings))
	for _, p := range c.Prices.Casings {
		c.casings[casingKey(p.Family, p.Material)] = p.PriceEntry
	}
	c.impellers = make(map[string]PriceEntry, len(c.Prices.Impellers))
	for _, p := range c.Prices.Impellers {
		c.impellers[p.Code] = p.PriceEntry
	}
	c.motors = make(map[string]PriceEntry, len(c.Prices.Motors))
	for _, p := range c.Prices.Motors {
		c.motors[motorKey(p.HP, p.Voltage)] = p.PriceEntry
	}
	c.seals = make(map[string]PriceEntry, len(c.Prices.Seals))
	for _, p := range c.Prices.Seals {
		c.seals[sealKey(p.SealType, p.Material)] = p.PriceEntry
	}
	c.mounts = make(map[model.Mount]PriceEntry, len(c.Prices.Mounts))
	for _, p := range c.Prices.Mounts {
		c.mounts[p.Mount] = p.PriceEntry
	}
	return nil
}

// FamilyByCode 按系列代码查找系列信息。
func (c *Catalog) FamilyByCode(code string) (Family, bool) {
	for _, f := range c.Families {
		if f.Family == code {
			return f, true
		}
	}
	return Family{}, false
}

func (c *Catalog) Casing(family string, m model.Material) (PriceEntry, error) {
	if p, ok := c.casings[casingKey(family, m)]; ok {
		return p, nil
	}
	return PriceEntry{}, fmt.Errorf("%w: casing %s/%s", ErrPriceNotFound, family, m)
}

func (c *Catalog) Impeller(code string) (PriceEntry, error) {
	if p, ok := c.impellers[code]; ok {
		return p, nil
	}
	return PriceEntry{}, fmt.Errorf("%w: impeller %s", ErrPriceNotFound, code)
}

func (c *Catalog) Motor(hp float64, v model.PowerSupply) (PriceEntry, error) {
	if p, ok := c.motors[motorKey(hp, v)]; ok {
		return p, nil
	}
	return PriceEntry{}, fmt.Errorf("%w: motor %gHP/%s", ErrPriceNotFound, hp, v)
}

func (c *Catalog) Seal(s model.SealType, m model.Material) (PriceEntry, error) {
	if p, ok := c.seals[sealKey(s, m)]; ok {
		return p, nil
	}
	return PriceEntry{}, fmt.Errorf("%w: seal %s/%s", ErrPriceNotFound, s, m)
}

func (c *Catalog) Mount(m model.Mount) (PriceEntry, error) {
	if p, ok := c.mounts[m]; ok {
		return p, nil
	}
	return PriceEntry{}, fmt.Errorf("%w: mount %s", ErrPriceNotFound, m)
}

// fixed 返回固定物料；SKU 为空视为缺失。
func fixed(name string, p PriceEntry) (PriceEntry, error) {
	if strings.TrimSpace(p.SKU) == "" {
		return PriceEntry{}, fmt.Errorf("%w: %s", ErrPriceNotFound, name)
	}
	return p, nil
}

func (c *Catalog) Coupling() (PriceEntry, error)    { return fixed("coupling", c.Prices.Coupling) }
func (c *Catalog) ATEXPackage() (PriceEntry, error) { return fixed("atex_package", c.Prices.ATEXPackage) }
func (c *Catalog) Fasteners() (PriceEntry, error)   { return fixed("fasteners", c.Prices.Fasteners) }
func (c *Catalog) Finish() (PriceEntry, error)      { return fixed("finish", c.Prices.Finish) }
