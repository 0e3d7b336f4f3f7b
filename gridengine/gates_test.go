package gridengine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridbot/domain"
)

func baseSpec() *domain.OrderSpec {
	return &domain.OrderSpec{MinProfitPercent: d("0.5")}
}

func TestShouldBuyPriceAboveTargetBlocks(t *testing.T) {
	spec := baseSpec()
	state := &domain.GridState{CurrentFocusPrice: d("94000"), NextBuyTarget: d("93530")}
	ok, reason := ShouldBuy(d("93600"), state, spec)
	assert.False(t, ok)
	assert.Equal(t, "price above next buy target", reason)
}

func TestShouldBuyPassesAtOrBelowTarget(t *testing.T) {
	spec := baseSpec()
	state := &domain.GridState{CurrentFocusPrice: d("94000"), NextBuyTarget: d("93530")}
	ok, _ := ShouldBuy(d("93500"), state, spec)
	assert.True(t, ok)
}

func TestShouldBuyPriceThresholdBlocksUnlessProfitableAndAllowed(t *testing.T) {
	spec := baseSpec()
	spec.BuyConditions = domain.SideConditions{PriceThreshold: d("100000"), CheckThresholdIfProfitable: true}
	state := &domain.GridState{CurrentFocusPrice: d("101600"), NextBuyTarget: d("101092"), TotalProfit: d("5")}

	ok, reason := ShouldBuy(d("101000"), state, spec)
	assert.False(t, ok)
	assert.Equal(t, "buy price threshold", reason)

	spec.BuyConditions.CheckThresholdIfProfitable = false
	ok, _ = ShouldBuy(d("101000"), state, spec)
	assert.True(t, ok, "profitable state should bypass the threshold when checkThresholdIfProfitable is false")
}

func TestShouldBuySwingGateBlocks(t *testing.T) {
	spec := baseSpec()
	spec.BuySwingPercent = []domain.RangeValue{{Value: d("5")}}
	state := &domain.GridState{CurrentFocusPrice: d("94000"), NextBuyTarget: d("93530")}
	// move is only ~0.53%, below the 5% swing requirement
	ok, reason := ShouldBuy(d("93500"), state, spec)
	assert.False(t, ok)
	assert.Equal(t, "buy swing gate", reason)
}

func TestShouldSellShortMirrorsShouldBuy(t *testing.T) {
	spec := baseSpec()
	state := &domain.GridState{CurrentFocusPrice: d("94000"), NextSellTarget: d("94470")}
	ok, reason := ShouldSellShort(d("94000"), state, spec)
	assert.False(t, ok)
	assert.Equal(t, "price below next sell target", reason)

	ok, _ = ShouldSellShort(d("94470"), state, spec)
	assert.True(t, ok)
}

func TestLongCloseThresholdBlocks(t *testing.T) {
	spec := baseSpec()
	spec.SellConditions = domain.SideConditions{PriceThreshold: d("90000"), CheckThresholdIfProfitable: true}
	state := &domain.GridState{}
	assert.True(t, longCloseThresholdBlocks(d("89000"), state, spec))

	state.TotalProfit = d("1")
	spec.SellConditions.CheckThresholdIfProfitable = false
	assert.False(t, longCloseThresholdBlocks(d("89000"), state, spec))
}

func TestSwingGatePassesWhenFocusZeroOrRowMissing(t *testing.T) {
	assert.True(t, swingGatePasses(decimal.Zero, d("100"), nil))
	assert.True(t, swingGatePasses(d("100"), d("105"), nil))
}

func TestSwingGatePassesWhenDeltaMeetsThreshold(t *testing.T) {
	rows := []domain.RangeValue{{Value: d("1")}}
	assert.False(t, swingGatePasses(d("94000"), d("94100"), rows)) // ~0.1%, below 1%
	assert.True(t, swingGatePasses(d("94000"), d("95000"), rows))  // ~1.06%, meets 1%
}
