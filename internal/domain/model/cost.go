package model

// Credit amounts are computed in micro-credits and only rounded up once, at
// the total.
const MicroPerCredit int64 = 1_000_000

const (
	costBaseMicro       = 1 * MicroPerCredit
	costLengthLongMicro = 1 * MicroPerCredit // messages over 2000 chars
	costLengthMedMicro  = MicroPerCredit / 2 // messages over 1000 chars
	costImageMicro      = 2 * MicroPerCredit
	costContextMicro    = 1 * MicroPerCredit // conversation context over 5000 chars
)

type CostBreakdown struct {
	BaseMicro    int64 `json:"base_micro"`
	LengthMicro  int64 `json:"length_micro"`
	ImageMicro   int64 `json:"image_micro"`
	ContextMicro int64 `json:"context_micro"`
}

type CostEstimate struct {
	TotalCredits int           `json:"total_credits"`
	Breakdown    CostBreakdown `json:"breakdown"`
}

// EstimateCost prices a prospective message from its shape. Pure preview
// pricing: the committed charge is the flat per-session debit, never this.
func EstimateCost(messageLength int, hasImages bool, contextSize int) CostEstimate {
	b := CostBreakdown{BaseMicro: costBaseMicro}
	switch {
	case messageLength > 2000:
		b.LengthMicro = costLengthLongMicro
	case messageLength > 1000:
		b.LengthMicro = costLengthMedMicro
	}
	if hasImages {
		b.ImageMicro = costImageMicro
	}
	if contextSize > 5000 {
		b.ContextMicro = costContextMicro
	}
	sum := b.BaseMicro + b.LengthMicro + b.ImageMicro + b.ContextMicro
	total := int((sum + MicroPerCredit - 1) / MicroPerCredit)
	return CostEstimate{TotalCredits: total, Breakdown: b}
}
