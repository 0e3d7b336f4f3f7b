package gridengine

import (
	"github.com/shopspring/decimal"

	"gridbot/domain"
)

// canExecuteBuy implements spec.md §4.6.5 step 4 (canExecuteBuy):
// wallet-exposure gating by the order's configured mode.
func canExecuteBuy(quoteBalance, txValue decimal.Decimal, state *domain.GridState, policy domain.SideWalletPolicy) (bool, string) {
	avail := quoteBalance.Sub(policy.WalletProtection)
	if avail.LessThan(txValue) {
		return false, "insufficient quote balance"
	}

	switch policy.Mode {
	case domain.ModeOnlySold:
		allowed := state.TotalSoldValue.Sub(state.TotalBoughtValue)
		if policy.AddProfit {
			allowed = allowed.Add(state.TotalProfit)
		}
		if txValue.GreaterThan(allowed) {
			return false, "onlySold allowance exceeded"
		}
	case domain.ModeMaxDefined:
		effMax := policy.MaxValue
		if policy.AddProfit {
			effMax = effMax.Add(state.TotalProfit)
		}
		if state.TotalBoughtValue.Add(txValue).GreaterThan(effMax) {
			return false, "maxDefined allowance exceeded"
		}
	case domain.ModeWalletLimit:
		// avail check above already covers walletLimit mode.
	}

	return true, ""
}

// canExecuteSellShort mirrors canExecuteBuy for the short side: the
// allowance tracks how much has been shorted (totalSoldValue) against
// how much has been bought back (totalBoughtValue), symmetric to the
// long side's sold-vs-bought tracking.
func canExecuteSellShort(baseBalance, txValue decimal.Decimal, state *domain.GridState, policy domain.SideWalletPolicy) (bool, string) {
	avail := baseBalance.Sub(policy.WalletProtection)
	if avail.LessThan(decimal.Zero) {
		return false, "insufficient base balance"
	}

	switch policy.Mode {
	case domain.ModeOnlySold:
		allowed := state.TotalBoughtValue.Sub(state.TotalSoldValue)
		if policy.AddProfit {
			allowed = allowed.Add(state.TotalProfit)
		}
		if txValue.GreaterThan(allowed) {
			return false, "onlySold allowance exceeded"
		}
	case domain.ModeMaxDefined:
		effMax := policy.MaxValue
		if policy.AddProfit {
			effMax = effMax.Add(state.TotalProfit)
		}
		if state.TotalSoldValue.Add(txValue).GreaterThan(effMax) {
			return false, "maxDefined allowance exceeded"
		}
	case domain.ModeWalletLimit:
	}

	return true, ""
}
