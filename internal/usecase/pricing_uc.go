package usecase

import (
	"avatar-therapy-chat/internal/domain/model"
)

// PricingUseCase exposes preview pricing for prospective messages.
//
// The estimate is advisory UI pricing only: it is recomputed on every
// debounced input change and once more before sending, but the committed
// ledger charge is always the flat per-session debit made by the session
// manager. Nothing here mutates the ledger.
type PricingUseCase interface {
	Estimate(messageLength int, hasImages bool, contextSize int) model.CostEstimate
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct{}

func NewPricingUseCase() PricingUseCase {
	return &pricingUC{}
}

func (p *pricingUC) Estimate(messageLength int, hasImages bool, contextSize int) model.CostEstimate {
	return model.EstimateCost(messageLength, hasImages, contextSize)
}
