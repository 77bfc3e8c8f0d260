package credits

import (
	"fmt"
	"slices"

	"contentdesk/internal/app/model"
)

type Policy string

const (
	// PolicyQuoted charges the full quote even when part of an image batch fails.
	PolicyQuoted Policy = "quoted"
	// PolicyProrated charges only for images that were actually produced.
	PolicyProrated Policy = "prorated"
)

type Tier struct {
	Name    model.VideoTier `yaml:"name" json:"name"`
	Cuts    int             `yaml:"cuts" json:"cuts"`
	Credits int             `yaml:"credits" json:"credits"`
}

type Pricing struct {
	AIImage      int                       `yaml:"ai_image"`
	CardNewsCard int                       `yaml:"cardnews_card"`
	Tiers        map[model.VideoTier]Tier `yaml:"tiers"`
	PartialBatch Policy                    `yaml:"partial_batch"`
}

func DefaultPricing() Pricing {
	return Pricing{
		AIImage:      2,
		CardNewsCard: 1,
		Tiers: map[model.VideoTier]Tier{
			model.TierShort:    {Name: model.TierShort, Cuts: 3, Credits: 10},
			model.TierStandard: {Name: model.TierStandard, Cuts: 5, Credits: 20},
			model.TierPremium:  {Name: model.TierPremium, Cuts: 8, Credits: 40},
		},
		PartialBatch: PolicyQuoted,
	}
}

// WithDefaults returns DefaultPricing for an empty table. Otherwise it fills
// in the partial-batch policy and any missing tier; unit prices are kept as
// given, so a zero price means free.
func (p Pricing) WithDefaults() Pricing {
	def := DefaultPricing()
	if p.AIImage == 0 && p.CardNewsCard == 0 && len(p.Tiers) == 0 && p.PartialBatch == "" {
		return def
	}
	if p.PartialBatch == "" {
		p.PartialBatch = def.PartialBatch
	}
	tiers := make(map[model.VideoTier]Tier, len(def.Tiers))
	for name, t := range def.Tiers {
		tiers[name] = t
	}
	for name, t := range p.Tiers {
		t.Name = name
		tiers[name] = t
	}
	p.Tiers = tiers
	return p
}

func (p Pricing) Validate() error {
	if p.PartialBatch != PolicyQuoted && p.PartialBatch != PolicyProrated {
		return fmt.Errorf("unknown partial batch policy %q", p.PartialBatch)
	}
	if p.AIImage < 0 || p.CardNewsCard < 0 {
		return fmt.Errorf("unit prices must not be negative")
	}
	for name, t := range p.Tiers {
		if t.Credits < 0 || t.Cuts <= 0 {
			return fmt.Errorf("tier %s: credits must be >= 0 and cuts > 0", name)
		}
	}
	return nil
}

// Cost depends only on content type, image format, image count and video
// tier. Text never costs anything.
func (p Pricing) Cost(req model.GenerationRequest) int {
	cost := 0
	if req.WantsImages() {
		count := max(req.ImageCount, 0)
		switch req.ImageFormat {
		case model.FormatAIImage:
			cost += p.AIImage * count
		case model.FormatCardNews:
			cost += p.CardNewsCard * count
		}
	}
	if req.WantsVideo() {
		cost += p.Tiers[req.VideoTier].Credits
	}
	return cost
}

// Charge is the amount actually debited once the stages are done. Under the
// prorated policy an ai-image batch is billed per image produced.
func (p Pricing) Charge(req model.GenerationRequest, imagesProduced int) int {
	quote := p.Cost(req)
	if p.PartialBatch != PolicyProrated || !req.WantsImages() || req.ImageFormat != model.FormatAIImage {
		return quote
	}
	missing := max(req.ImageCount-imagesProduced, 0)
	return quote - missing*p.AIImage
}

// TierList returns tiers ordered by price.
func (p Pricing) TierList() []Tier {
	list := make([]Tier, 0, len(p.Tiers))
	for _, t := range p.Tiers {
		list = append(list, t)
	}
	slices.SortFunc(list, func(a, b Tier) int { return a.Credits - b.Credits })
	return list
}

// Reserve is a pre-check only. It never mutates anything.
func Reserve(balance, cost int) error {
	if cost <= balance {
		return nil
	}
	return &model.InsufficientCreditError{
		Balance:   balance,
		Cost:      cost,
		Shortfall: cost - balance,
	}
}
